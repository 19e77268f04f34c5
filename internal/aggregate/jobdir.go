package aggregate

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"

	"ChainFL/internal/artifact"
)

const (
	outName    = "out.json"
	globalName = "global.json"
)

// jobDir is a scratch directory holding one job's weight documents.
type jobDir struct {
	dir     string
	updates []string // updates are file names in job order
	sizes   []uint64
}

// writeJobDir materializes job as weight documents under a fresh directory in root.
func writeJobDir(root string, job Job) (*jobDir, error) {
	dir, err := os.MkdirTemp(root, fmt.Sprintf("round-%d-", job.Round))
	if err != nil {
		return nil, fmt.Errorf("create job dir:\n%w", err)
	}

	jd := &jobDir{dir: dir}

	if err := writeDoc(filepath.Join(dir, globalName), job.Global); err != nil {
		jd.remove()
		return nil, err
	}

	for i, u := range job.Updates {
		name := fmt.Sprintf("update-%03d.json", i)

		if err := writeDoc(filepath.Join(dir, name), u.Vector); err != nil {
			jd.remove()
			return nil, err
		}

		jd.updates = append(jd.updates, name)
		jd.sizes = append(jd.sizes, u.Size)
	}

	return jd, nil
}

// args renders "<out> <global> (<update> <size>)..." with paths under base.
func (jd *jobDir) args(base string, join func(elem ...string) string) []string {
	out := []string{join(base, outName), join(base, globalName)}

	for i, name := range jd.updates {
		out = append(out, join(base, name), strconv.FormatUint(jd.sizes[i], 10))
	}

	return out
}

// hostArgs uses host paths.
func (jd *jobDir) hostArgs() []string {
	return jd.args(jd.dir, filepath.Join)
}

// guestArgs uses paths under a guest mount point.
func (jd *jobDir) guestArgs(mount string) []string {
	return jd.args(mount, path.Join)
}

// result reads the output document.
func (jd *jobDir) result() (WeightVector, error) {
	data, err := os.ReadFile(filepath.Join(jd.dir, outName))
	if err != nil {
		return nil, fmt.Errorf("%w: read output: %v", ErrAggregation, err)
	}

	w, err := artifact.DecodeWeights(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAggregation, err)
	}

	return w, nil
}

func (jd *jobDir) remove() {
	os.RemoveAll(jd.dir)
}

func writeDoc(p string, w WeightVector) error {
	data, err := artifact.EncodeWeights(w)
	if err != nil {
		return fmt.Errorf("encode %s:\n%w", filepath.Base(p), err)
	}

	if err := os.WriteFile(p, data, 0o644); err != nil {
		return fmt.Errorf("write %s:\n%w", filepath.Base(p), err)
	}

	return nil
}
