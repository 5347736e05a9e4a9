package ebpf

import "testing"

func TestCanLoadReflectsBTFInfo(t *testing.T) {
	l := &Loader{btfInfo: &BTFInfo{Available: true, CORESupport: true}}
	if !l.CanLoad() {
		t.Fatalf("CanLoad() = false, want true when BTF is available with CO-RE support")
	}

	l = &Loader{btfInfo: &BTFInfo{Available: true, CORESupport: false}}
	if l.CanLoad() {
		t.Fatalf("CanLoad() = true, want false without CO-RE support")
	}

	l = &Loader{btfInfo: &BTFInfo{Available: false, CORESupport: true}}
	if l.CanLoad() {
		t.Fatalf("CanLoad() = true, want false without BTF availability")
	}
}

func TestTryLoadFailsFastWithoutCanLoad(t *testing.T) {
	l := &Loader{btfInfo: &BTFInfo{Available: false}}
	_, err := l.TryLoad(nil, &ProgramSpec{Name: "ssl_write"})
	if err == nil {
		t.Fatal("TryLoad() error = nil, want an error when BTF/CO-RE is unavailable")
	}
	var loadErr *LoadError
	if !asLoadError(err, &loadErr) {
		t.Fatalf("TryLoad() error = %v, want a *LoadError", err)
	}
	if loadErr.Program != "ssl_write" {
		t.Fatalf("LoadError.Program = %q, want ssl_write", loadErr.Program)
	}
}

func TestNativeProgramsNameUprobeAndKprobeTargets(t *testing.T) {
	var sawUprobe, sawKprobe bool
	for _, spec := range NativePrograms {
		if spec.Uprobe {
			sawUprobe = true
			if spec.BinaryPath == "" {
				t.Fatalf("uprobe spec %q has no BinaryPath", spec.Name)
			}
		} else {
			sawKprobe = true
		}
	}
	if !sawUprobe || !sawKprobe {
		t.Fatalf("NativePrograms should define at least one uprobe and one kprobe spec, got uprobe=%v kprobe=%v", sawUprobe, sawKprobe)
	}
}

func asLoadError(err error, target **LoadError) bool {
	le, ok := err.(*LoadError)
	if !ok {
		return false
	}
	*target = le
	return true
}
