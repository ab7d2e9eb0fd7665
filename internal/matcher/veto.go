package matcher

import "github.com/desertthunder/tracksync/internal/models"

// signal is a version marker that disqualifies a candidate unless the source shares it.
type signal string

const (
	signalLive        signal = "live"
	signalRemix       signal = "remix"
	signalCompilation signal = "compilation"
)

func (c Config) signals(name, album string) map[signal]bool {
	s := make(map[signal]bool, 3)
	check := func(sig signal, hit func(string) bool) {
		if hit(name) || hit(album) {
			s[sig] = true
		}
	}
	if c.Live != nil {
		check(signalLive, c.Live.MatchString)
	}
	if c.Remix != nil {
		check(signalRemix, c.Remix.MatchString)
	}
	if c.Compilation != nil {
		check(signalCompilation, c.Compilation.MatchString)
	}
	return s
}

// veto returns the first signal carried by the candidate but not by the source, or "".
func (c Config) veto(src models.SourceTrack, cand models.Candidate) signal {
	srcSignals := c.signals(src.Name, src.Album)
	candSignals := c.signals(cand.Name, cand.AlbumName)
	for _, sig := range []signal{signalLive, signalRemix, signalCompilation} {
		if candSignals[sig] && !srcSignals[sig] {
			return sig
		}
	}
	return ""
}
