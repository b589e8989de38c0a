package vm

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// Module namespaces
// ---------------------------------------------------------------------------

func TestNewModuleSetsName(t *testing.T) {
	m := NewModule("net")
	if m.Name != "net" {
		t.Errorf("Name = %q, want %q", m.Name, "net")
	}
	v, ok := m.Get("__name__")
	if !ok || v.Str() != "net" {
		t.Errorf("__name__ = %v, %v, want \"net\"", v, ok)
	}
}

func TestModuleSetGetDelete(t *testing.T) {
	m := NewModule("m")
	if _, ok := m.Get("x"); ok {
		t.Error("Get reported a hit before Set")
	}

	m.Set("x", MakeInt(1))
	v, ok := m.Get("x")
	if !ok {
		t.Fatal("Get missed after Set")
	}
	wantInt(t, v, 1)

	if !m.Delete("x") {
		t.Error("Delete = false for a present attribute")
	}
	if m.Delete("x") {
		t.Error("second Delete = true")
	}
	if _, ok := m.Get("x"); ok {
		t.Error("Get reported a hit after Delete")
	}
}

func TestModuleAttrNames(t *testing.T) {
	m := NewModule("m")
	m.Set("zeta", MakeInt(1))
	m.Set("alpha", MakeInt(2))

	names := m.AttrNames()
	want := []string{"__name__", "alpha", "zeta"}
	if len(names) != len(want) {
		t.Fatalf("AttrNames() = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("AttrNames()[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

// ---------------------------------------------------------------------------
// Module cache
// ---------------------------------------------------------------------------

func TestCacheImportWithoutLoader(t *testing.T) {
	cache := NewModuleCache(nil)
	_, err := cache.Import("nosuch")
	if err == nil {
		t.Fatal("Import succeeded without a loader")
	}
	wantExc(t, AsException(err), "ImportError", "No module named 'nosuch'")
}

func TestCacheImportLoadsOnce(t *testing.T) {
	loads := 0
	cache := NewModuleCache(func(name string) (*Module, error) {
		loads++
		m := NewModule(name)
		m.Set("origin", MakeStr(name))
		return m, nil
	})

	first, err := cache.Import("helpers")
	if err != nil {
		t.Fatalf("first import: %v", err)
	}
	second, err := cache.Import("helpers")
	if err != nil {
		t.Fatalf("second import: %v", err)
	}
	if first != second {
		t.Error("imports returned different module handles")
	}
	if loads != 1 {
		t.Errorf("loader ran %d times, want 1", loads)
	}
}

func TestCacheImportStampsName(t *testing.T) {
	cache := NewModuleCache(func(name string) (*Module, error) {
		return NewModule("scratch"), nil
	})
	m, err := cache.Import("net")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if v, ok := m.Get("__name__"); !ok || v.Str() != "net" {
		t.Errorf("__name__ = %v, %v, want the imported name", v, ok)
	}
}

func TestCacheImportLoaderError(t *testing.T) {
	loads := 0
	cache := NewModuleCache(func(name string) (*Module, error) {
		loads++
		return nil, NewImportError("disk on fire")
	})

	for i := 0; i < 2; i++ {
		_, err := cache.Import("flaky")
		if err == nil {
			t.Fatalf("import %d succeeded, want error", i)
		}
		wantExc(t, AsException(err), "ImportError", "disk on fire")
	}
	// A failed load is not cached; each attempt retries.
	if loads != 2 {
		t.Errorf("loader ran %d times, want 2", loads)
	}
}

func TestCacheLoaderSelfRegistration(t *testing.T) {
	var cache *ModuleCache
	registered := NewModule("cyclic")
	cache = NewModuleCache(func(name string) (*Module, error) {
		// A loader that runs top-level code registers the module before
		// returning, the way circular imports require.
		cache.Add(registered)
		return NewModule(name), nil
	})

	m, err := cache.Import("cyclic")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if m != registered {
		t.Error("Import did not honor the module the loader registered")
	}
}

func TestCacheGetDoesNotLoad(t *testing.T) {
	loads := 0
	cache := NewModuleCache(func(name string) (*Module, error) {
		loads++
		return NewModule(name), nil
	})

	if _, ok := cache.Get("lazy"); ok {
		t.Error("Get reported a hit before any import")
	}
	if loads != 0 {
		t.Errorf("Get triggered %d loads", loads)
	}

	m := NewModule("lazy")
	cache.Add(m)
	got, ok := cache.Get("lazy")
	if !ok || got != m {
		t.Error("Get missed an added module")
	}
}

func TestCacheAddKeepsExisting(t *testing.T) {
	cache := NewModuleCache(nil)
	first := NewModule("dup")
	second := NewModule("dup")

	if got := cache.Add(first); got != first {
		t.Error("first Add returned a different handle")
	}
	if got := cache.Add(second); got != first {
		t.Error("second Add did not return the existing module")
	}
}

func TestCacheRemove(t *testing.T) {
	loads := 0
	cache := NewModuleCache(func(name string) (*Module, error) {
		loads++
		return NewModule(name), nil
	})

	if _, err := cache.Import("m"); err != nil {
		t.Fatalf("import: %v", err)
	}
	if !cache.Remove("m") {
		t.Error("Remove = false for a cached module")
	}
	if cache.Remove("m") {
		t.Error("second Remove = true")
	}

	if _, err := cache.Import("m"); err != nil {
		t.Fatalf("reimport: %v", err)
	}
	if loads != 2 {
		t.Errorf("loader ran %d times, want a fresh load after Remove", loads)
	}
}

func TestCacheNames(t *testing.T) {
	cache := NewModuleCache(nil)
	cache.Add(NewModule("zeta"))
	cache.Add(NewModule("alpha"))

	names := cache.Names()
	if len(names) != 2 || names[0] != "alpha" || names[1] != "zeta" {
		t.Errorf("Names() = %v, want sorted [alpha zeta]", names)
	}
}

func TestCacheConcurrentImportSingleFlight(t *testing.T) {
	var loads int32
	cache := NewModuleCache(func(name string) (*Module, error) {
		atomic.AddInt32(&loads, 1)
		time.Sleep(10 * time.Millisecond)
		return NewModule(name), nil
	})

	const n = 8
	results := make([]*Module, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m, err := cache.Import("shared")
			if err != nil {
				t.Errorf("import: %v", err)
				return
			}
			results[i] = m
		}(i)
	}
	wg.Wait()

	if got := atomic.LoadInt32(&loads); got != 1 {
		t.Errorf("loader ran %d times, want 1", got)
	}
	for i := 1; i < n; i++ {
		if results[i] != results[0] {
			t.Fatalf("importer %d got a different module handle", i)
		}
	}
}

// ---------------------------------------------------------------------------
// Running modules
// ---------------------------------------------------------------------------

func TestRunModuleVisibleDuringExecution(t *testing.T) {
	// import self  (the module imports itself while its body runs)
	code := &Code{
		Name: "self", QualName: "self",
		Names: []string{"self", "me"},
		Bytecode: asm(func(b *BytecodeBuilder) {
			b.EmitUint16(OpImportName, 0)
			b.EmitUint16(OpStoreName, 1)
		}),
	}
	v := NewVM()
	m, err := v.RunModule("self", code)
	if err != nil {
		t.Fatalf("RunModule: %v", err)
	}
	got, ok := m.Get("me")
	if !ok || got.Kind() != KindModule || got.Module() != m {
		t.Error("module was not importable from its own top-level code")
	}
}

func TestRunModuleRemovedOnFailure(t *testing.T) {
	code := &Code{
		Name: "broken", QualName: "broken",
		Names: []string{"ValueError"},
		Bytecode: asm(func(b *BytecodeBuilder) {
			b.EmitUint16(OpLoadGlobal, 0)
			b.EmitByte(OpRaise, 1)
		}),
	}
	v := NewVM()
	_, err := v.RunModule("broken", code)
	if err == nil {
		t.Fatal("RunModule succeeded, want error")
	}
	if _, ok := v.Modules().Get("broken"); ok {
		t.Error("failed module left in the cache")
	}
}

func TestVMImportUsesLoader(t *testing.T) {
	v := NewVM()
	v.SetLoader(func(name string) (*Module, error) {
		m := NewModule(name)
		m.Set("greeting", MakeStr("HEY"))
		return m, nil
	})

	m, err := v.Import("helpers")
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if got, ok := m.Get("greeting"); !ok || got.Str() != "HEY" {
		t.Errorf("greeting = %v, %v, want HEY", got, ok)
	}

	again, err := v.Import("helpers")
	if err != nil || again != m {
		t.Error("second Import did not hit the cache")
	}
}
