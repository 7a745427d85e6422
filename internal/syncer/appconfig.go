package syncer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"propsync/internal/logger"
	"propsync/internal/util"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/afero"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const appConfigPattern = "global/app/*/config/*"

// normalizeAppConfig lower-cases the top-level "name" field of application
// config documents in place. Other files are left alone.
func (o *Orchestrator) normalizeAppConfig(file string) error {
	rel, err := filepath.Rel(o.srcDir(), file)
	if err != nil {
		return nil
	}
	if ok, _ := doublestar.Match(appConfigPattern, filepath.ToSlash(rel)); !ok {
		return nil
	}

	data, err := afero.ReadFile(o.fs, file)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", file, err)
	}

	updated, changed := lowerName(data)
	if !changed {
		return nil
	}

	if err := util.AtomicWrite(o.fs, file, bytes.NewReader(updated)); err != nil {
		return err
	}

	logger.Log.Info("normalized app config name",
		zap.String("path", file))
	return nil
}

// lowerName rewrites the raw span of the top-level "name" string value.
func lowerName(data []byte) ([]byte, bool) {
	if !gjson.ValidBytes(data) {
		return data, false
	}

	name := gjson.GetBytes(data, "name")
	if name.Type != gjson.String || name.Index <= 0 {
		return data, false
	}

	lower := strings.ToLower(name.Str)
	if lower == name.Str {
		return data, false
	}

	end := name.Index + len(name.Raw)
	if end > len(data) || string(data[name.Index:end]) != name.Raw {
		return data, false
	}

	raw, err := json.Marshal(lower)
	if err != nil {
		return data, false
	}

	out := make([]byte, 0, len(data)+len(raw)-len(name.Raw))
	out = append(out, data[:name.Index]...)
	out = append(out, raw...)
	out = append(out, data[end:]...)
	return out, true
}
