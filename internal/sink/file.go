package sink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/vidgrab/internal/engine"
	"github.com/tanq16/vidgrab/internal/utils"
)

var finalizeMu sync.Mutex

// FileSink writes downloads into a local directory. Data lands in a
// temporary part file first and is renamed into place once fully written.
type FileSink struct {
	Dir string
}

func NewFileSink(dir string) *FileSink {
	if dir == "" {
		dir = "."
	}
	return &FileSink{Dir: dir}
}

func (s *FileSink) Persist(ctx context.Context, blob *engine.Blob, filename string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return fmt.Errorf("error creating output directory: %v", err)
	}
	tempDir := filepath.Join(s.Dir, utils.TempDirName)
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		return fmt.Errorf("error creating temp directory: %v", err)
	}
	f, err := os.CreateTemp(tempDir, filename+".*.part")
	if err != nil {
		return fmt.Errorf("error creating temp file: %v", err)
	}
	tempPath := f.Name()
	_, err = f.Write(blob.Data)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("error writing temp file: %v", err)
	}

	// name selection and rename must not interleave between jobs
	finalizeMu.Lock()
	defer finalizeMu.Unlock()
	outputPath := filepath.Join(s.Dir, filename)
	if _, err := os.Stat(outputPath); err == nil {
		outputPath = utils.RenewOutputPath(outputPath)
	}
	if err := os.Rename(tempPath, outputPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("error renaming (finalizing) output file: %v", err)
	}
	log.Debug().Str("op", "sink/file").Msgf("wrote %s (%d bytes)", outputPath, blob.Size())
	return nil
}
