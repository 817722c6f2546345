// Package execution runs and submits the shared code through the external
// execution service and shares the candidate's results with the host.
package execution

import (
	"context"

	"go.uber.org/zap"

	"github.com/BioHazard786/Warproom/cli/internal/document"
	"github.com/BioHazard786/Warproom/internal/protocol"
)

// Service is the external execution service.
type Service interface {
	Run(ctx context.Context, lang document.Language, code string, vectors []document.TestVector) (RunResult, error)
	Submit(ctx context.Context, lang document.Language, code, problemID string) (SubmissionResult, error)
}

// Broadcaster sends a result to the peer.
type Broadcaster func(msgType string, payload any) error

// Dispatcher turns run and submit actions into service calls. Every call
// ends in a result; service errors become infrastructure failures.
type Dispatcher struct {
	role protocol.Role
	svc  Service
	send Broadcaster
	log  *zap.Logger
}

func NewDispatcher(role protocol.Role, svc Service, send Broadcaster, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{role: role, svc: svc, send: send, log: log}
}

// broadcasts reports whether results of role's own actions go to the peer.
// The host grades; only the candidate's results are shared.
func broadcasts(role protocol.Role) bool {
	return role == protocol.RoleCandidate
}

// Run blocks until the service answers or ctx ends.
func (d *Dispatcher) Run(ctx context.Context, lang document.Language, code string, vectors []document.TestVector) RunResult {
	res, err := d.svc.Run(ctx, lang, code, vectors)
	if err != nil {
		d.log.Warn("run failed", zap.String("language", string(lang)), zap.Error(err))
		res = RunResult{Kind: KindInfrastructureFailure, Error: err.Error()}
	}
	d.share(protocol.TypeRunResult, res)
	return res
}

// Submit blocks until the service answers or ctx ends.
func (d *Dispatcher) Submit(ctx context.Context, lang document.Language, code, problemID string) SubmissionResult {
	res, err := d.svc.Submit(ctx, lang, code, problemID)
	if err != nil {
		d.log.Warn("submit failed", zap.String("problem", problemID), zap.Error(err))
		res = SubmissionResult{Kind: KindInfrastructureFailure, Error: err.Error()}
	}
	d.share(protocol.TypeSubmissionResult, res)
	return res
}

func (d *Dispatcher) share(msgType string, result any) {
	if !broadcasts(d.role) || d.send == nil {
		return
	}
	if err := d.send(msgType, result); err != nil {
		d.log.Warn("share result", zap.String("type", msgType), zap.Error(err))
	}
}
