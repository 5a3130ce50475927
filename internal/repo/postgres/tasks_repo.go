package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"taskhub/internal/domain/task"
	"taskhub/internal/observability"
)

const taskColumns = `id, user_id, title, description, completed, priority, category, due_date, created_at, updated_at`

type TasksRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewTasksRepo(pool *pgxpool.Pool, prom *observability.Prom) *TasksRepo {
	return &TasksRepo{
		pool: pool,
		prom: prom,
	}
}

func (r *TasksRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

func scanTask(row pgx.Row) (task.Task, error) {
	var t task.Task

	err := row.Scan(
		&t.ID,
		&t.UserID,
		&t.Title,
		&t.Description,
		&t.Completed,
		&t.Priority,
		&t.Category,
		&t.DueDate,
		&t.CreatedAt,
		&t.UpdatedAt,
	)

	return t, err
}

func (r *TasksRepo) Create(ctx context.Context, ownerID int64, req task.CreateTaskRequest) (task.Task, error) {
	var t task.Task

	err := r.observe("tasks.create", func() error {
		row := r.pool.QueryRow(
			ctx,
			`INSERT INTO tasks (user_id, title, description, priority, category, due_date)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 RETURNING `+taskColumns,
			ownerID, req.Title, req.Description, req.Priority, req.Category, req.DueDate,
		)

		var e error
		t, e = scanTask(row)
		return e
	})

	if err != nil {
		return task.Task{}, err
	}

	return t, nil
}

func (r *TasksRepo) ListByOwner(ctx context.Context, ownerID int64) ([]task.Task, error) {
	var out []task.Task

	err := r.observe("tasks.list", func() error {
		rows, err := r.pool.Query(
			ctx,
			`SELECT `+taskColumns+`
			 FROM tasks
			 WHERE user_id = $1
			 ORDER BY created_at DESC, id DESC`,
			ownerID,
		)

		if err != nil {
			return err
		}

		defer rows.Close()

		out = make([]task.Task, 0)

		for rows.Next() {
			t, err := scanTask(rows)

			if err != nil {
				return err
			}

			out = append(out, t)
		}

		return rows.Err()
	})

	if err != nil {
		return nil, err
	}

	return out, nil
}

// GetByID filters on owner as well as id, so a foreign task looks exactly
// like a missing one.
func (r *TasksRepo) GetByID(ctx context.Context, id, ownerID int64) (task.Task, error) {
	var t task.Task

	err := r.observe("tasks.get_by_id", func() error {
		row := r.pool.QueryRow(
			ctx,
			`SELECT `+taskColumns+`
			 FROM tasks
			 WHERE id = $1 AND user_id = $2`,
			id, ownerID,
		)

		var e error
		t, e = scanTask(row)
		return e
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return task.Task{}, task.ErrNotFound
		}

		return task.Task{}, err
	}

	return t, nil
}

// Update is a single conditional write: COALESCE keeps stored values for
// fields the client omitted, and the owner id is part of the WHERE clause so
// there is no separate ownership check to race against.
func (r *TasksRepo) Update(ctx context.Context, id, ownerID int64, req task.UpdateTaskRequest) (task.Task, error) {
	var t task.Task

	err := r.observe("tasks.update", func() error {
		row := r.pool.QueryRow(
			ctx,
			`UPDATE tasks
			 SET title       = COALESCE($3, title),
			     description = COALESCE($4, description),
			     completed   = COALESCE($5, completed),
			     priority    = COALESCE($6, priority),
			     category    = COALESCE($7, category),
			     due_date    = COALESCE($8, due_date),
			     updated_at  = NOW()
			 WHERE id = $1 AND user_id = $2
			 RETURNING `+taskColumns,
			id, ownerID,
			req.Title, req.Description, req.Completed, req.Priority, req.Category, req.DueDate,
		)

		var e error
		t, e = scanTask(row)
		return e
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return task.Task{}, task.ErrNotFound
		}

		return task.Task{}, err
	}

	return t, nil
}

func (r *TasksRepo) Delete(ctx context.Context, id, ownerID int64) error {
	var affected int64

	err := r.observe("tasks.delete", func() error {
		res, err := r.pool.Exec(
			ctx,
			`DELETE FROM tasks WHERE id = $1 AND user_id = $2`,
			id, ownerID,
		)

		if err != nil {
			return err
		}

		affected = res.RowsAffected()
		return nil
	})

	if err != nil {
		return err
	}

	// nothing deleted: either the task does not exist or it is not yours
	if affected == 0 {
		return task.ErrNotFound
	}

	return nil
}
