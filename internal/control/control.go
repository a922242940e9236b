// Package control is the role-gated front door to a WorkQueue: every
// submission is tagged with a session id, checked against the caller's
// role, and recorded to the audit log before (admission outcome) and
// after (terminal outcome) the underlying queue.Enqueue call settles.
package control

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/magyarmex/heatqueue/internal/audit"
	"github.com/magyarmex/heatqueue/internal/queue"
	"github.com/magyarmex/heatqueue/pkg/types"
)

// ErrForbidden is returned when an actor's role does not permit the
// requested action.
var ErrForbidden = fmt.Errorf("control: action not permitted for this role")

// Session identifies one actor's interaction with the control plane.
type Session struct {
	ID    string
	Actor string
	Role  types.Role
}

// NewSession mints a session for actor with the given role, tagging it
// with a fresh UUID so every audit entry it produces can be correlated.
func NewSession(actor string, role types.Role) Session {
	return Session{ID: uuid.NewString(), Actor: actor, Role: role}
}

// Plane wraps a WorkQueue with role checks and audit logging. A nil Log is
// permitted for tests and demos that don't care about durability.
type Plane struct {
	Queue *queue.WorkQueue
	Log   *audit.Log
}

// New builds a Plane over q, auditing to log (which may be nil).
func New(q *queue.WorkQueue, log *audit.Log) *Plane {
	return &Plane{Queue: q, Log: log}
}

func canEnqueue(role types.Role) bool {
	return role == types.RoleOperator || role == types.RoleAdmin
}

// Enqueue admits fn on behalf of sess, provided sess.Role permits
// enqueuing. Admission and terminal outcomes are both recorded to the
// audit log (when one is configured); a role violation is recorded and
// returned immediately without ever reaching the queue.
func (p *Plane) Enqueue(sess Session, name string, fn queue.JobFunc, durationLimit, heartbeatInterval time.Duration) (*queue.Handle, error) {
	if !canEnqueue(sess.Role) {
		p.audit(sess, "enqueue_denied", types.OutcomeRecord{Job: name, Kind: "forbidden", Error: ErrForbidden.Error()})
		return nil, ErrForbidden
	}

	handle := p.Queue.Enqueue(fn, durationLimit, heartbeatInterval)
	admission := types.OutcomeRecord{Job: name, Kind: "admitted"}
	select {
	case <-handle.Done():
		if out := handle.Wait(); out.Kind == queue.OutcomeQueueFull {
			admission.Kind = out.Kind.String()
			admission.Error = out.Err.Error()
		}
	default:
	}
	p.audit(sess, "enqueue", admission)
	go p.auditTerminal(sess, name, handle)
	return handle, nil
}

func (p *Plane) auditTerminal(sess Session, name string, handle *queue.Handle) {
	out := handle.Wait()
	record := types.OutcomeRecord{Job: name, Kind: out.Kind.String()}
	if out.Err != nil {
		record.Error = out.Err.Error()
	}
	p.audit(sess, "job_settled", record)
}

func (p *Plane) audit(sess Session, action string, record types.OutcomeRecord) {
	if p.Log == nil {
		return
	}
	// Audit failures must never mask the caller's actual outcome; the
	// control plane logs and moves on rather than propagating a write
	// error up through Enqueue.
	_ = p.Log.Record(sess.Actor, sess.Role, action, record)
}

// CanRead reports whether role may read queue/canary status.
func CanRead(role types.Role) bool {
	return role == types.RoleOperator || role == types.RoleAdmin || role == types.RoleReadOnly
}

// CanAdminister reports whether role may drive canary rollouts.
func CanAdminister(role types.Role) bool {
	return role == types.RoleAdmin
}
