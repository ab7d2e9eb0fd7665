package shared

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestNormalizeText(t *testing.T) {
	tc := []struct {
		name string
		in   string
		want string
	}{
		{name: "mixed case and whitespace", in: "  SoNg   TiTlE  ", want: "song title"},
		{name: "dash remaster suffix", in: "Hey Jude - Remastered 2015", want: "hey jude"},
		{name: "bracketed remaster", in: "Hey Jude (Remastered 2015)", want: "hey jude"},
		{name: "radio edit", in: "Levels - Radio Edit", want: "levels"},
		{name: "deluxe album", in: "1989 (Deluxe Edition)", want: "1989"},
		{name: "featuring in brackets", in: "Song (feat. Someone)", want: "song"},
		{name: "inline featuring", in: "Song feat. Someone Else", want: "song"},
		{name: "diacritics", in: "Tiësto", want: "tiesto"},
		{name: "apostrophes", in: "Don't Stop Me Now", want: "dont stop me now"},
		{name: "ampersand", in: "Rock & Roll", want: "rock and roll"},
		{name: "punctuation", in: "Hello, World!", want: "hello world"},
		{name: "empty", in: "", want: ""},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeText(tt.in); got != tt.want {
				t.Errorf("NormalizeText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestPrimaryArtist(t *testing.T) {
	tc := []struct {
		in, want string
	}{
		{"Solo", "Solo"},
		{"A, B", "A"},
		{"A & B", "A"},
		{"A feat. B", "A"},
		{"A ft. B, C", "A"},
		{"  A  ", "A"},
	}
	for _, tt := range tc {
		t.Run(tt.in, func(t *testing.T) {
			if got := PrimaryArtist(tt.in); got != tt.want {
				t.Errorf("PrimaryArtist(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestJaccard(t *testing.T) {
	tc := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "hello world", "Hello World", 1},
		{"disjoint", "hello", "world", 0},
		{"partial", "a b", "b c", 1.0 / 3.0},
		{"both empty", "", "", 1},
		{"one empty", "a", "", 0},
		{"qualifier stripped", "Hey Jude - Remastered", "Hey Jude", 1},
	}
	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			if got := Jaccard(tt.a, tt.b); got != tt.want {
				t.Errorf("Jaccard(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestAlbums(t *testing.T) {
	if !AlbumsEqual("Abbey Road (Remastered)", "abbey road") {
		t.Error("expected normalized albums to be equal")
	}
	if AlbumsEqual("", "") {
		t.Error("empty albums should never be equal")
	}
	if !AlbumsOverlap("Abbey Road", "Abbey Road Super Sessions") {
		t.Error("containment should overlap")
	}
	if AlbumsOverlap("Abbey Road", "Let It Be") {
		t.Error("unrelated albums should not overlap")
	}
}

func TestDurations(t *testing.T) {
	if DurationBucket(204_999) != 40 || DurationBucket(205_000) != 41 {
		t.Errorf("unexpected bucket boundaries: %d %d", DurationBucket(204_999), DurationBucket(205_000))
	}
	if DurationBucket(-1) != 0 {
		t.Error("negative durations should bucket to zero")
	}
	if !WithinMS(200_000, 201_999, 2000) {
		t.Error("expected 1999ms difference to be within tolerance")
	}
	if WithinMS(200_000, 202_001, 2000) {
		t.Error("expected 2001ms difference to exceed tolerance")
	}
	if WithinMS(0, 0, 2000) {
		t.Error("unknown durations should never match")
	}
}

func TestCompositeKey(t *testing.T) {
	t.Run("stable", func(t *testing.T) {
		a := CompositeKey("Song", "Artist", "Album", 200_000)
		b := CompositeKey("Song", "Artist", "Album", 200_000)
		if a != b {
			t.Errorf("expected stable key, got %q and %q", a, b)
		}
		if a != "song|artist|album|40" {
			t.Errorf("unexpected key %q", a)
		}
	})

	t.Run("primary artist only", func(t *testing.T) {
		solo := CompositeKey("Song", "Artist A", "Album", 200_000)
		joined := CompositeKey("Song", "Artist A & Artist B", "Album", 200_000)
		featured := CompositeKey("Song", "Artist A feat. Artist C", "Album", 200_000)
		if solo != joined || solo != featured {
			t.Errorf("expected same key, got %q, %q, %q", solo, joined, featured)
		}
	})

	t.Run("edition qualifiers collapse", func(t *testing.T) {
		a := CompositeKey("Song - Remastered 2011", "Artist", "Album (Deluxe Edition)", 201_000)
		b := CompositeKey("Song", "Artist", "Album", 203_000)
		if a != b {
			t.Errorf("expected qualifiers to collapse, got %q and %q", a, b)
		}
	})
}

func TestAPIErrorKind(t *testing.T) {
	tc := []struct {
		status int
		want   ErrorKind
	}{
		{http.StatusTooManyRequests, KindTransient},
		{http.StatusInternalServerError, KindTransient},
		{http.StatusBadGateway, KindTransient},
		{http.StatusUnauthorized, KindAuthExpired},
		{http.StatusNotFound, KindNotFound},
		{http.StatusMethodNotAllowed, KindNotFound},
		{http.StatusBadRequest, KindFatal},
		{http.StatusForbidden, KindFatal},
		{http.StatusConflict, KindUnknown},
	}
	for _, tt := range tc {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			err := NewAPIError("applemusic", "GET", "/v1/catalog", tt.status, nil)
			if got := err.Kind(); got != tt.want {
				t.Errorf("Kind() = %v, want %v", got, tt.want)
			}
			wrapped := fmt.Errorf("search: %w", err)
			if got := Classify(wrapped); got != tt.want {
				t.Errorf("Classify(wrapped) = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAPIErrorIs(t *testing.T) {
	err := fmt.Errorf("wrap: %w", NewAPIError("spotify", "GET", "/v1/me", http.StatusTooManyRequests, []byte("slow down")))
	if !errors.Is(err, ErrRateLimited) {
		t.Error("429 should match ErrRateLimited")
	}
	if !errors.Is(err, ErrAPIRequest) {
		t.Error("every APIError should match ErrAPIRequest")
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("429 should not match ErrNotFound")
	}

	notFound := NewAPIError("applemusic", "POST", "/v1/me/library/playlists/p.1/tracks", http.StatusNotFound, nil)
	if !errors.Is(notFound, ErrNotFound) || !IsNotFound(notFound) {
		t.Error("404 should be a not-found error")
	}
}

func TestAPIErrorBodyTruncated(t *testing.T) {
	body := make([]byte, 2048)
	for i := range body {
		body[i] = 'x'
	}
	err := NewAPIError("spotify", "GET", "/v1/me", http.StatusBadRequest, body)
	if len(err.Body) != 512 {
		t.Errorf("expected body truncated to 512, got %d", len(err.Body))
	}
}

func TestClassifySentinels(t *testing.T) {
	tc := []struct {
		err  error
		want ErrorKind
	}{
		{nil, KindUnknown},
		{ErrTokenExpired, KindAuthExpired},
		{fmt.Errorf("x: %w", ErrServiceUnavailable), KindTransient},
		{ErrPlaylistNotFound, KindNotFound},
		{fmt.Errorf("%w: spotify client_id", ErrMissingCredentials), KindFatal},
		{errors.New("boom"), KindUnknown},
	}
	for i, tt := range tc {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestFormatDuration(t *testing.T) {
	tc := map[int]string{0: "0:00", 65_000: "1:05", 3_725_000: "1:02:05"}
	for ms, want := range tc {
		if got := FormatDuration(ms); got != want {
			t.Errorf("FormatDuration(%d) = %q, want %q", ms, got, want)
		}
	}
}

func TestGenerateState(t *testing.T) {
	a, err := GenerateState()
	if err != nil {
		t.Fatalf("GenerateState() error = %v", err)
	}
	b, err := GenerateState()
	if err != nil {
		t.Fatalf("GenerateState() error = %v", err)
	}

	if len(a) != 32 {
		t.Errorf("len = %d, want 32", len(a))
	}
	if a == b {
		t.Error("expected distinct states")
	}
	if strings.ContainsAny(a, "+/=") {
		t.Errorf("state %q is not url-safe", a)
	}
}
