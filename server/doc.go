/*
Package server exposes the recurring-task scheduler over a small JSON API.

# Basic Usage

	store := memory.New()
	sched := scheduler.New(store)
	users := authmem.New()
	users.AddUser("ceo", "secret", auth.RoleCEO)

	srv, err := server.New(store, sched, users, "LRH Flow")
	if err != nil {
		log.Fatal(err)
	}
	http.ListenAndServe(":8080", srv)

# Routes

All routes except /healthz require HTTP Basic authentication:
  - POST  /api/tasks                 create a task (recurring tasks become chain heads)
  - GET   /api/tasks                 list tasks (chain, status, recurring, heads, limit)
  - GET   /api/tasks/{id}            fetch a task
  - PATCH /api/tasks/{id}/status     change status; DONE runs the completion hook
  - POST  /api/recurrence/preview    next occurrence and preview of a rule
  - POST  /api/sweep                 run the look-ahead sweep (CEO, EXECUTIVE)
  - GET   /api/calendar.ics          open tasks as an iCalendar VTODO feed
  - POST  /api/tasks/import          create tasks from VTODOs (CEO, EXECUTIVE)

# Custom Storage Backend

Any storage.Storage works. The backend must reject a second instance with
the same chain and occurrence date with storage.ErrAlreadyExists; the
scheduler relies on it when several processes generate concurrently.
*/
package server
