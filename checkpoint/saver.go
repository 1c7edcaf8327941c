package checkpoint

import "time"

// Save throttle: a save happens when either threshold is reached.
const (
	saveMinInterval = 5 * time.Second
	saveMinFiles    = 100
)

// Saver owns the live checkpoint during a run and throttles disk
// writes. It is driver-only; workers hand written files to the driver,
// which feeds them through MarkWritten.
type Saver struct {
	cp             *Checkpoint
	outputDir      string
	lastSave       time.Time
	filesSinceSave int
}

// NewSaver wraps a checkpoint (fresh or loaded) for the given output
// directory.
func NewSaver(cp *Checkpoint, outputDir string) *Saver {
	return &Saver{
		cp:        cp,
		outputDir: outputDir,
		lastSave:  time.Now(),
	}
}

// MarkWritten records a written file and saves if the throttle allows.
func (s *Saver) MarkWritten(zipPath, outputPath string, size uint64) {
	s.cp.MarkWritten(zipPath, outputPath, size)
	s.filesSinceSave++
	if time.Since(s.lastSave) >= saveMinInterval || s.filesSinceSave >= saveMinFiles {
		s.ForceSave()
	}
}

// ForceSave writes the checkpoint now, bypassing the throttle. Save
// failures are swallowed here; durability is re-verified at stage
// boundaries where a failure is fatal.
func (s *Saver) ForceSave() {
	_ = s.cp.Save(s.outputDir)
	s.lastSave = time.Now()
	s.filesSinceSave = 0
}

// SaveNow writes the checkpoint and reports failure to the caller.
func (s *Saver) SaveNow() error {
	err := s.cp.Save(s.outputDir)
	s.lastSave = time.Now()
	s.filesSinceSave = 0
	return err
}

// SetStage updates the stage marker on the underlying checkpoint.
func (s *Saver) SetStage(stage string) {
	s.cp.SetStage(stage)
}

// MarkCompleted flags the run complete and removes the checkpoint file.
func (s *Saver) MarkCompleted() error {
	s.cp.MarkCompleted()
	return Delete(s.outputDir)
}

// WrittenMap exposes the already-written files for skip decisions.
func (s *Saver) WrittenMap() map[string]string {
	return s.cp.WrittenMap()
}

// Checkpoint returns the underlying checkpoint.
func (s *Saver) Checkpoint() *Checkpoint {
	return s.cp
}
