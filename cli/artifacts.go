package cli

// This file contains artifact management for saving failure diagnostics
// to the history directory.

import (
	"crypto/sha256"
	"encoding/base32"
	"os"
	"path/filepath"
	"strings"

	"github.com/perfgo/e2erun/engine"
	"github.com/perfgo/e2erun/model"
)

// contentName prefixes basename with a hash of data so repeated failures of
// the same test never overwrite each other.
func contentName(data []byte, basename string) string {
	hashBytes := sha256.Sum256(data)
	hash := strings.ToLower(base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(hashBytes[:]))
	return hash[:16] + "." + basename
}

// fileSafe replaces path separators so a test name like "flows/login" stays
// a single file inside the run directory.
var fileSafe = strings.NewReplacer("/", "_", "\\", "_")

func (r *runRecorder) saveArtifact(runDir string, typ model.ArtifactType, basename string, data []byte) (model.Artifact, bool) {
	filename := contentName(data, basename)
	if err := os.WriteFile(filepath.Join(runDir, filename), data, 0644); err != nil {
		r.logger.Warn().Err(err).Str("file", filename).Msg("Failed to write artifact")
		return model.Artifact{}, false
	}
	r.logger.Debug().Str("type", typ.String()).Str("dest", filename).Msg("Saved artifact")
	return model.Artifact{Type: typ, Size: uint64(len(data)), File: filename}, true
}

func (r *runRecorder) saveArtifacts(runDir, test string, d engine.Diagnostics) []model.Artifact {
	var artifacts []model.Artifact
	add := func(typ model.ArtifactType, basename string, data []byte) {
		if len(data) == 0 {
			return
		}
		if a, ok := r.saveArtifact(runDir, typ, basename, data); ok {
			artifacts = append(artifacts, a)
		}
	}

	name := fileSafe.Replace(test)
	add(model.ArtifactTypeScreenshot, name+".png", d.Screenshot)
	if len(d.Console) > 0 {
		add(model.ArtifactTypeConsoleLog, name+".console.txt", []byte(d.ConsoleLog+"\n"))
	}
	if d.Trace != "" {
		add(model.ArtifactTypeTrace, name+".trace.txt", []byte(d.Trace+"\n"))
	}
	return artifacts
}
