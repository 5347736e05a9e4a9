package ebpf

import (
	"context"
	"fmt"
	"log"
	"path/filepath"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/link"
)

// ProgramSpec describes a native eBPF program to load.
type ProgramSpec struct {
	Name       string
	Category   string
	ObjectFile string // path to compiled .o
	MapNames   []string
	AttachTo   string // kprobe function name, or uprobe symbol name
	Section    string // section name in .o executable (e.g. kprobe/tcp_retransmit_skb)
	Uprobe     bool   // attach to a userspace library (BinaryPath) instead of a kprobe
	BinaryPath string // shared object to attach Uprobe to, e.g. libssl.so
}

// LoadedProgram represents a running BPF program.
type LoadedProgram struct {
	Spec       *ProgramSpec
	Collection *ebpf.Collection
	Link       link.Link
}

// Close cleans up resources.
func (p *LoadedProgram) Close() error {
	if p.Link != nil {
		p.Link.Close()
	}
	if p.Collection != nil {
		p.Collection.Close()
	}
	return nil
}

// Loader handles loading and unloading native eBPF programs.
type Loader struct {
	btfInfo *BTFInfo
	verbose bool
}

// NewLoader creates a new eBPF program loader.
func NewLoader(verbose bool) *Loader {
	return &Loader{
		btfInfo: DetectBTF(),
		verbose: verbose,
	}
}

// CanLoad returns whether the system supports native eBPF loading.
func (l *Loader) CanLoad() bool {
	return l.btfInfo.Available && l.btfInfo.CORESupport
}

// LoadError represents a BPF program load failure.
type LoadError struct {
	Program string
	Err     error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("BPF program %q: %v", e.Program, e.Err)
}

// TryLoad attempts to load a BPF program.
func (l *Loader) TryLoad(ctx context.Context, spec *ProgramSpec) (*LoadedProgram, error) {
	if !l.CanLoad() {
		return nil, &LoadError{
			Program: spec.Name,
			Err:     fmt.Errorf("BTF/CO-RE not available (kernel %s)", l.btfInfo.KernelVersion),
		}
	}

	// 1. Load the compiled BPF object
	// We assume the object file is relative to executable or CWD
	// Real implementation might search in a standard path
	path := spec.ObjectFile
	if !filepath.IsAbs(path) {
		// Just use as is, assuming running from root
	}

	collSpec, err := ebpf.LoadCollectionSpec(path)
	if err != nil {
		return nil, &LoadError{Program: spec.Name, Err: fmt.Errorf("load spec: %w", err)}
	}

	// 2. Instantiate the collection (load into kernel)
	// We do this simply; genericCO-RE might need more options
	coll, err := ebpf.NewCollection(collSpec)
	if err != nil {
		return nil, &LoadError{Program: spec.Name, Err: fmt.Errorf("load collection: %w", err)}
	}

	// 3. Attach kprobe
	// Find the program
	prog := coll.Programs[spec.Section]
	if prog == nil {
		// Try to find by name if section fails
		// Iterating over Spec.Programs map might be safer
		for _, p := range coll.Programs {
			prog = p
			break // Just take the first one for now?
			// A more robust implementation would match by name/section explicitly.
		}
	}

	if prog == nil {
		coll.Close()
		return nil, &LoadError{Program: spec.Name, Err: fmt.Errorf("program not found in collection")}
	}

	var lk link.Link
	if spec.Uprobe {
		ex, err := link.OpenExecutable(spec.BinaryPath)
		if err != nil {
			coll.Close()
			return nil, &LoadError{Program: spec.Name, Err: fmt.Errorf("open executable %s: %w", spec.BinaryPath, err)}
		}
		lk, err = ex.Uprobe(spec.AttachTo, prog, nil)
		if err != nil {
			coll.Close()
			return nil, &LoadError{Program: spec.Name, Err: fmt.Errorf("attach uprobe %s@%s: %w", spec.AttachTo, spec.BinaryPath, err)}
		}
	} else {
		lk, err = link.Kprobe(spec.AttachTo, prog, nil)
		if err != nil {
			coll.Close()
			return nil, &LoadError{Program: spec.Name, Err: fmt.Errorf("attach kprobe %s: %w", spec.AttachTo, err)}
		}
	}

	if l.verbose {
		log.Printf("[ebpf] loaded %s (attach: %s, uprobe=%v)", spec.Name, spec.AttachTo, spec.Uprobe)
	}

	return &LoadedProgram{
		Spec:       spec,
		Collection: coll,
		Link:       lk,
	}, nil
}

// TierDecision is DecideTier's verdict; Reason is set when UseTier3 is false.
type TierDecision struct {
	UseTier3 bool
	Reason   string
}

// DecideTier reports whether program can use native eBPF (tier 3) on this host.
func DecideTier(program string, l *Loader) TierDecision {
	if !l.CanLoad() {
		return TierDecision{Reason: fmt.Sprintf("%s: BTF/CO-RE not available (kernel %s)", program, l.btfInfo.KernelVersion)}
	}
	return TierDecision{UseTier3: true}
}

// NativePrograms defines the programs the kernel-plaintext capture
// adapter attaches: uprobes on the TLS library's plaintext read/write
// entry points, plus a kprobe on tcp_connect to correlate the
// connection 4-tuple (spec.md §6's kernel-plaintext adapter).
var NativePrograms = []ProgramSpec{
	{
		Name:       "ssl_write",
		Category:   "tls_plaintext",
		ObjectFile: "internal/ebpf/bpf/ssl_rw.o",
		MapNames:   []string{"events"},
		AttachTo:   "SSL_write",
		Section:    "uprobe/SSL_write",
		Uprobe:     true,
		BinaryPath: "/usr/lib/x86_64-linux-gnu/libssl.so.3",
	},
	{
		Name:       "ssl_read",
		Category:   "tls_plaintext",
		ObjectFile: "internal/ebpf/bpf/ssl_rw.o",
		MapNames:   []string{"events"},
		AttachTo:   "SSL_read",
		Section:    "uprobe/SSL_read",
		Uprobe:     true,
		BinaryPath: "/usr/lib/x86_64-linux-gnu/libssl.so.3",
	},
	{
		Name:       "tcp_connect",
		Category:   "tls_plaintext",
		ObjectFile: "internal/ebpf/bpf/tcp_connect.o",
		MapNames:   []string{"connections"},
		AttachTo:   "tcp_connect",
		Section:    "kprobe/tcp_connect",
	},
}
