package checkin

import "context"

// Recorder submits the chosen (visitor, activity) pair.
type Recorder struct {
	creator VisitCreator
}

// NewRecorder returns a Recorder using creator.
func NewRecorder(creator VisitCreator) *Recorder {
	return &Recorder{creator: creator}
}

// Record creates the visit.  A rejected payload is
// ReasonSubmissionRejected, anything else ReasonSubmissionTransport.
func (r *Recorder) Record(ctx context.Context, visitorID, activityID int64) error {
	err := r.creator.CreateVisit(ctx, visitorID, activityID)
	if err == nil {
		return nil
	}
	switch kindOf(err) {
	case KindInvalid, KindNotFound:
		return &Failure{Reason: ReasonSubmissionRejected, Dest: DestServerError, Err: err}
	default:
		return &Failure{Reason: ReasonSubmissionTransport, Dest: DestServerError, Err: err}
	}
}
