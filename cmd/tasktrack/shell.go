package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"tasktrack/internal/store"
)

const menu = `
--- Todo List Manager ---
1. List all tasks
2. Add a new task
3. Update an existing task
4. Delete a task
5. Mark all tasks as completed
6. Archive completed tasks
7. Export tasks to CSV
8. Search tasks by keyword
9. Undo last action
10. Quit`

// shell drives one Store through the numbered menu. Errors from a single
// action are printed and the loop continues.
type shell struct {
	in         io.Reader
	out        io.Writer
	store      *store.Store
	exportPath string

	scanner *bufio.Scanner
}

func (sh *shell) run() error {
	sh.scanner = bufio.NewScanner(sh.in)
	sh.reminders()
	for {
		fmt.Fprintln(sh.out, menu)
		choice, ok := sh.prompt("Enter your choice: ")
		if !ok {
			return sh.scanner.Err()
		}
		var err error
		switch choice {
		case "1":
			err = sh.list()
		case "2":
			err = sh.add()
		case "3":
			err = sh.update()
		case "4":
			err = sh.delete()
		case "5":
			if err = sh.store.MarkAllCompleted(); err == nil {
				fmt.Fprintln(sh.out, "All tasks marked as completed.")
			}
		case "6":
			var archived int
			if archived, err = sh.archive(); err == nil {
				fmt.Fprintf(sh.out, "Archived %d completed task(s).\n", archived)
			}
		case "7":
			if err = sh.store.ExportCSV(sh.exportPath); err == nil {
				fmt.Fprintf(sh.out, "Tasks exported to %s.\n", sh.exportPath)
			}
		case "8":
			sh.search()
		case "9":
			var undone bool
			if undone, err = sh.store.UndoLast(); err == nil {
				if undone {
					fmt.Fprintln(sh.out, "Last action undone.")
				} else {
					fmt.Fprintln(sh.out, "No action to undo.")
				}
			}
		case "10":
			fmt.Fprintln(sh.out, "Goodbye!")
			return nil
		default:
			fmt.Fprintln(sh.out, "Invalid choice. Please try again.")
		}
		if err != nil {
			fmt.Fprintln(sh.out, "error:", err)
		}
	}
}

// prompt prints label and reads one trimmed line; ok is false at EOF.
func (sh *shell) prompt(label string) (string, bool) {
	fmt.Fprint(sh.out, label)
	if !sh.scanner.Scan() {
		return "", false
	}
	return strings.TrimSpace(sh.scanner.Text()), true
}

func (sh *shell) reminders() {
	overdue, err := sh.store.Overdue()
	if err != nil {
		fmt.Fprintln(sh.out, "error:", err)
		return
	}
	printReminders(sh.out, overdue)
}

func (sh *shell) list() error {
	sortBy, _ := sh.prompt("Sort by (due_date/priority/name/status): ")
	tasks, err := sh.store.List(store.ListOptions{SortBy: store.SortKey(sortBy)})
	if err != nil {
		return err
	}
	renderTasks(sh.out, tasks)
	return nil
}

func (sh *shell) add() error {
	name, _ := sh.prompt("Task name: ")
	due, _ := sh.prompt("Due date (YYYY-MM-DD): ")
	priority, _ := sh.prompt("Priority (High/Medium/Low): ")
	category, _ := sh.prompt("Category: ")
	rec, _ := sh.prompt("Recurrence (daily/weekly/monthly/none): ")
	recurrence, err := parseRecurrence(rec)
	if err != nil {
		return err
	}
	t, err := sh.store.Add(name, due, store.AddOptions{Priority: priority, Category: category, Recurrence: recurrence})
	if err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "Task %d added.\n", t.ID)
	return nil
}

func (sh *shell) update() error {
	raw, _ := sh.prompt("Task ID to update: ")
	id, err := parseID(raw)
	if err != nil {
		return err
	}
	var u store.TaskUpdate
	if name, _ := sh.prompt("New name (leave blank to skip): "); name != "" {
		u.Name = &name
	}
	if due, _ := sh.prompt("New due date (leave blank to skip): "); due != "" {
		u.DueDate = &due
	}
	if priority, _ := sh.prompt("New priority (leave blank to skip): "); priority != "" {
		u.Priority = &priority
	}
	if status, _ := sh.prompt("Completed? (y/n, leave blank to skip): "); status != "" {
		done := strings.HasPrefix(strings.ToLower(status), "y")
		u.Completed = &done
	}
	ok, err := sh.store.Update(id, u)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("task %d not found", id)
	}
	fmt.Fprintln(sh.out, "Task updated.")
	return nil
}

func (sh *shell) delete() error {
	raw, _ := sh.prompt("Task ID to delete: ")
	id, err := parseID(raw)
	if err != nil {
		return err
	}
	ok, err := sh.store.Delete(id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("task %d not found", id)
	}
	fmt.Fprintln(sh.out, "Task deleted.")
	return nil
}

func (sh *shell) archive() (int, error) {
	archived, err := sh.store.ArchiveCompleted()
	return len(archived), err
}

func (sh *shell) search() {
	keyword, _ := sh.prompt("Enter keyword to search: ")
	found := sh.store.Search(keyword)
	if len(found) == 0 {
		fmt.Fprintln(sh.out, "No tasks match the keyword.")
		return
	}
	for _, t := range found {
		fmt.Fprintf(sh.out, "%d: %s (Due: %s)\n", t.ID, t.Name, t.DueDate)
	}
}
