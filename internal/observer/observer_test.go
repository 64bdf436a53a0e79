package observer

import "testing"

func TestRegistry_AddNotifyDetach(t *testing.T) {
	var r Registry[int]
	var a, b []int

	detachA := r.Add(func(v int) { a = append(a, v) })
	r.Add(func(v int) { b = append(b, v) })

	r.Notify(1)
	detachA()
	detachA() // idempotent
	r.Notify(2)

	if len(a) != 1 || a[0] != 1 {
		t.Errorf("a = %v, want [1]", a)
	}
	if len(b) != 2 || b[1] != 2 {
		t.Errorf("b = %v, want [1 2]", b)
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}

func TestRegistry_DetachDuringNotify(t *testing.T) {
	var r Registry[string]
	calls := 0

	var detach func()
	detach = r.Add(func(string) {
		calls++
		detach()
	})

	r.Notify("x")
	r.Notify("y")

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
