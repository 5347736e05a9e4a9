// Package kernelcapture is the --mode ebpf input adapter of spec.md
// §6: it attaches the uprobe/kprobe programs of internal/ebpf and
// would reassemble HTTP/1.1 or HTTP/2 request records from the
// resulting (pid, tid, data, ts) ring-buffer into event.Event values.
// spec.md §1 lists the kernel-plaintext capture itself as deliberately
// out of scope ("treated as external collaborator"); this package
// implements only the attach/detach lifecycle against that contract.
package kernelcapture

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/glasswally/glasswally/internal/adapter"
	"github.com/glasswally/glasswally/internal/ebpf"
	"github.com/glasswally/glasswally/internal/event"
)

// Adapter attaches the TLS-plaintext capture programs and holds them
// attached until ctx is cancelled. It forwards no events.
type Adapter struct {
	Log zerolog.Logger
}

// Run attaches every program in ebpf.NativePrograms and blocks until ctx
// is cancelled, detaching on return. Reassembly of the captured
// plaintext into event.Event records is the external-collaborator
// boundary named in spec.md §1/§6; this adapter does not decode
// payloads itself and so never sends on out.
func (a *Adapter) Run(ctx context.Context, out chan<- event.Event) (adapter.Stats, error) {
	loader := ebpf.NewLoader(true)
	if !loader.CanLoad() {
		a.Log.Warn().Msg("kernelcapture: BTF/CO-RE unavailable, native eBPF capture disabled")
		<-ctx.Done()
		return adapter.Stats{}, nil
	}

	var loaded []*ebpf.LoadedProgram
	for i := range ebpf.NativePrograms {
		spec := ebpf.NativePrograms[i]
		prog, err := loader.TryLoad(ctx, &spec)
		if err != nil {
			a.Log.Warn().Err(err).Str("program", spec.Name).Msg("kernelcapture: failed to attach")
			continue
		}
		loaded = append(loaded, prog)
		a.Log.Info().Str("program", spec.Name).Msg("kernelcapture: attached")
	}
	defer func() {
		for _, p := range loaded {
			p.Close()
		}
	}()

	<-ctx.Done()
	return adapter.Stats{}, nil
}
