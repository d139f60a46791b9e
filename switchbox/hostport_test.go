package switchbox

import "testing"

func TestParseListenParamsAppliesDefaultPort(t *testing.T) {
	host, port, err := ParseListenParams(":", 8817)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if host != "" || port != 8817 {
		t.Fatalf("got host=%q port=%d, want host=\"\" port=8817", host, port)
	}
}

func TestParseListenParamsExplicitPort(t *testing.T) {
	host, port, err := ParseListenParams("127.0.0.1:9000", 8817)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if host != "127.0.0.1" || port != 9000 {
		t.Fatalf("got host=%q port=%d, want host=127.0.0.1 port=9000", host, port)
	}
}

func TestParseListenParamsNoDefaultFails(t *testing.T) {
	_, _, err := ParseListenParams(":", 0)
	if err == nil {
		t.Fatalf("expected error when no port is given and no default exists")
	}
}

func TestParseListenParamsTooLong(t *testing.T) {
	long := ""
	for i := 0; i < MaxListenParamsLen+1; i++ {
		long += "a"
	}
	_, _, err := ParseListenParams(long, 1)
	if err == nil {
		t.Fatalf("expected error for over-length listen parameter string")
	}
}

func TestAddrJoinsHostAndPort(t *testing.T) {
	got := Addr("example.com", 443)
	if got != "example.com:443" {
		t.Fatalf("Addr() = %q, want example.com:443", got)
	}
}
