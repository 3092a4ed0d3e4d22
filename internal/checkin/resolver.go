package checkin

import (
	"context"
	"errors"
	"strings"
)

var errNoVisitor = errors.New("no visitor matches the scanned code")

// Resolver maps a scan payload to a visitor with a single remote lookup.
type Resolver struct {
	finder VisitorFinder
}

// NewResolver returns a Resolver using finder.
func NewResolver(finder VisitorFinder) *Resolver {
	return &Resolver{finder: finder}
}

// Resolve looks payload up.  An empty answer is ReasonScanNotFound, any
// other failure ReasonResolverTransport.  Nothing is retried; the visitor
// has to scan again in a new session.
func (r *Resolver) Resolve(ctx context.Context, payload string) (Visitor, error) {
	if strings.TrimSpace(payload) == "" {
		return Visitor{}, &Failure{Reason: ReasonScanNotFound, Dest: DestScanError, Err: errNoVisitor}
	}
	v, err := r.finder.FindVisitorByQR(ctx, payload)
	if err != nil {
		if kindOf(err) == KindNotFound {
			return Visitor{}, &Failure{Reason: ReasonScanNotFound, Dest: DestScanError, Err: err}
		}
		return Visitor{}, &Failure{Reason: ReasonResolverTransport, Dest: DestScanError, Err: err}
	}
	if v == nil {
		return Visitor{}, &Failure{Reason: ReasonScanNotFound, Dest: DestScanError, Err: errNoVisitor}
	}
	out := *v
	if out.QRPayload == "" {
		out.QRPayload = payload
	}
	return out, nil
}
