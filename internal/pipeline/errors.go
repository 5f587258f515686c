package pipeline

import "errors"

// Fatal error classes. Record-level defects never surface as errors; they
// are reported as verdicts.
var (
	ErrConfiguration       = errors.New("configuration error")
	ErrIdentifierCollision = errors.New("identifier collision")
	ErrSigningKey          = errors.New("signing key unusable")
)

// Stage names reported in StageError.
const (
	StageConfig    = "config"
	StageRules     = "rules"
	StageSigning   = "signing"
	StageSource    = "source"
	StageNormalize = "normalize"
	StageValidate  = "validate"
	StageGraph     = "graph"
	StageManifest  = "manifest"
	StageReport    = "report"
	StagePublish   = "publish"
	StageLedger    = "ledger"
)

// StageError names the stage a run aborted in.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return e.Stage + ": " + e.Err.Error()
}

func (e *StageError) Unwrap() error {
	return e.Err
}
