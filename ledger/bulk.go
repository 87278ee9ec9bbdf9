/*
bulk.go - Apply one hours/status value to a whole crew for one day

PARTIAL FAILURE:
  Each employee is its own unit of work. An invalid or unknown employee
  fails alone; writes already applied for other employees in the same call
  stay committed. The caller receives both lists.

ORDERING:
  Employee lookups run concurrently (keys are disjoint), but writes are
  applied one by one in input order through the ledger's single writer, so
  the audit trail keeps a total order.
*/
package ledger

import (
	"context"
	"log"

	"golang.org/x/sync/errgroup"
)

// bulkLookupLimit bounds concurrent employee lookups during a bulk write.
const bulkLookupLimit = 8

// BulkFailure is one employee the bulk write could not apply.
type BulkFailure struct {
	EmployeeID string
	Err        error
}

type BulkResult struct {
	Date      Date
	Succeeded []string
	Failed    []BulkFailure
}

// AllSucceeded reports whether no employee failed.
func (r BulkResult) AllSucceeded() bool { return len(r.Failed) == 0 }

// ApplyBulk writes the same hours and status for every listed employee on
// date. Duplicate ids are applied once. The operation never fails as a
// whole: input errors are reported per employee in the result.
func (l *Ledger) ApplyBulk(ctx context.Context, employeeIDs []string, date Date, hours float64, status Status) BulkResult {
	ids := dedupe(employeeIDs)
	result := BulkResult{Date: date}

	value, err := validateEntryInput(date, hours, status)
	if err != nil {
		for _, id := range ids {
			result.Failed = append(result.Failed, BulkFailure{EmployeeID: id, Err: err})
		}
		logBulkFailures(result)
		return result
	}

	// Validate employees concurrently. Each slot is written by one goroutine.
	checks := make([]error, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bulkLookupLimit)
	for i, id := range ids {
		g.Go(func() error {
			emp, ok, err := l.store.GetEmployee(gctx, id)
			switch {
			case err != nil:
				checks[i] = err
			case !ok:
				checks[i] = employeeNotFound(id)
			default:
				checks[i] = requireActive(emp)
			}
			return nil
		})
	}
	_ = g.Wait()

	for i, id := range ids {
		if checks[i] != nil {
			result.Failed = append(result.Failed, BulkFailure{EmployeeID: id, Err: checks[i]})
			continue
		}
		if _, err := l.writeEntry(ctx, id, date, value, status); err != nil {
			result.Failed = append(result.Failed, BulkFailure{EmployeeID: id, Err: err})
			continue
		}
		result.Succeeded = append(result.Succeeded, id)
	}

	logBulkFailures(result)
	return result
}

// ApplyBulkActive applies the bulk write to every active employee.
func (l *Ledger) ApplyBulkActive(ctx context.Context, date Date, hours float64, status Status) (BulkResult, error) {
	employees, err := l.store.ListEmployees(ctx, false)
	if err != nil {
		return BulkResult{Date: date}, err
	}
	ids := make([]string, len(employees))
	for i, e := range employees {
		ids[i] = e.ID
	}
	return l.ApplyBulk(ctx, ids, date, hours, status), nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func logBulkFailures(r BulkResult) {
	for _, f := range r.Failed {
		log.Printf("[Bulk] %s on %s not applied: %v", f.EmployeeID, r.Date, f.Err)
	}
}
