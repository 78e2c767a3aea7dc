package browser

import "testing"

func TestParseProxyFull(t *testing.T) {
	p, err := ParseProxy("10.0.0.1:8080:user:pass")
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if p.Addr() != "10.0.0.1:8080" {
		t.Errorf("Addr() = %q", p.Addr())
	}
	if !p.HasAuth() || p.Username != "user" || p.Password != "pass" {
		t.Errorf("учётные данные разобраны неверно: %+v", p)
	}
}

func TestParseProxyWithoutAuth(t *testing.T) {
	p, err := ParseProxy("proxy.example.com:3128")
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if p.HasAuth() {
		t.Error("прокси без логина не должен требовать аутентификацию")
	}
}

func TestParseProxyEmpty(t *testing.T) {
	p, err := ParseProxy("")
	if err != nil || p != nil {
		t.Fatalf("пустая строка — это «без прокси»: p=%v err=%v", p, err)
	}
}

func TestParseProxyInvalid(t *testing.T) {
	if _, err := ParseProxy("just-a-host"); err == nil {
		t.Fatal("строка без порта должна давать ошибку")
	}
}
