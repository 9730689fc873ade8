package artifacts

import "github.com/cuemby/cloudcfg/pkg/types"

// WriteResolved writes the whole resolved model
func (w *Writer) WriteResolved(res *types.Resolved) error {
	return w.write(ResolvedFile, res)
}
