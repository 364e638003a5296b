package kernels

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseRef(t *testing.T) {
	tests := []struct {
		ref  string
		kind Kind
		want Ref
	}{
		{"pkg.mod:fn", KindAttention, Ref{"pkg.mod", "fn"}},
		{"pkg.mod", KindAttention, Ref{"pkg.mod", "clustered_attention"}},
		{"pkg.mod", KindDecode, Ref{"pkg.mod", "persistent_decode_step"}},
		{"pkg.mod:", KindDecode, Ref{"pkg.mod", "persistent_decode_step"}},
		{" kernels/flash.so:Attention ", KindAttention, Ref{"kernels/flash.so", "Attention"}},
		{"a:b:c", KindAttention, Ref{"a", "b:c"}},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			got, err := ParseRef(tt.ref, tt.kind)
			if err != nil {
				t.Fatalf("ParseRef(%q): unerwarteter Fehler: %v", tt.ref, err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseRef(%q) (-want +got):\n%s", tt.ref, diff)
			}
		})
	}
}

func TestParseRefErrors(t *testing.T) {
	for _, ref := range []string{"", ":", ":fn", "  "} {
		if _, err := ParseRef(ref, KindAttention); !errors.Is(err, ErrConfiguration) {
			t.Errorf("ParseRef(%q): erwartet ErrConfiguration, bekommen %v", ref, err)
		}
	}

	// Unbekannte Arten haben keinen Default-Entry
	if _, err := ParseRef("mod", Kind(99)); !errors.Is(err, ErrConfiguration) {
		t.Errorf("ParseRef ohne Default-Entry: erwartet ErrConfiguration, bekommen %v", err)
	}
}

func TestNotifier(t *testing.T) {
	n := NewNotifier(slog.New(slog.DiscardHandler))

	if n.HasWarned("a") {
		t.Error("HasWarned: neuer Notifier sollte leer sein")
	}
	if !n.WarnOnce("b", "msg") || n.WarnOnce("b", "msg") {
		t.Error("WarnOnce: nur der erste Aufruf sollte warnen")
	}
	if !n.MarkWarned("a") || n.MarkWarned("a") {
		t.Error("MarkWarned: nur der erste Aufruf sollte true liefern")
	}

	if diff := cmp.Diff([]string{"a", "b"}, n.Keys()); diff != "" {
		t.Errorf("Keys (-want +got):\n%s", diff)
	}

	n.Reset()
	if n.HasWarned("a") || len(n.Keys()) != 0 {
		t.Error("Reset sollte alle Schluessel entfernen")
	}
}

func TestAsAttentionAcceptsPointers(t *testing.T) {
	fn := marker("p")
	if _, ok := asAttention(&fn); !ok {
		t.Error("asAttention sollte *AttentionFunc akzeptieren")
	}

	var nilFn AttentionFunc
	if _, ok := asAttention(nilFn); ok {
		t.Error("asAttention sollte nil ablehnen")
	}

	if _, ok := asAttention("x"); ok {
		t.Error("asAttention sollte Nicht-Funktionen ablehnen")
	}
}
