package loop_mutex

import "testing"

func TestTryLockRejectsSecondCapture(t *testing.T) {
	if !TryLock("alice") {
		t.Fatal("первый захват должен проходить")
	}
	defer Unlock("alice")

	if TryLock("alice") {
		t.Fatal("повторный захват того же аккаунта должен отклоняться")
	}
}

func TestLocksAreIndependentPerAccount(t *testing.T) {
	if !TryLock("bob") {
		t.Fatal("первый захват bob должен проходить")
	}
	defer Unlock("bob")

	if !TryLock("carol") {
		t.Fatal("захват другого аккаунта не должен зависеть от bob")
	}
	Unlock("carol")
}

func TestUnlockAllowsRecapture(t *testing.T) {
	if !TryLock("dave") {
		t.Fatal("первый захват должен проходить")
	}
	Unlock("dave")

	if !TryLock("dave") {
		t.Fatal("после освобождения захват должен проходить снова")
	}
	Unlock("dave")
}
