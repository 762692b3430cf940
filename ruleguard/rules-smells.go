package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

func smells(m dsl.Matcher) {
	// Two guard ifs in a row returning the same value can be merged:
	//   if a { return err }
	//   if b { return err }
	//   => if a || b { return err }
	m.Match(`if $c1 { return $ret }; if $c2 { return $ret }`).
		Report(`two consecutive guards return the same value; consider merging conditions with ||`).
		Suggest(`if $c1 || $c2 { return $ret }`)

	m.Match(`if $c1 { continue }; if $c2 { continue }`).
		Report(`two consecutive continues; consider merging conditions with ||`).
		Suggest(`if $c1 || $c2 { continue }`)
}

// logging flags ad-hoc printing in library packages; components take a *slog.Logger.
func logging(m dsl.Matcher) {
	m.Match(`fmt.Println($*_)`, `fmt.Printf($*_)`, `log.Printf($*_)`, `log.Println($*_)`).
		Where(!m.File().PkgPath.Matches(`/cmd/`) && !m.File().Name.Matches(`_test\.go$`)).
		Report(`print to the injected *slog.Logger instead`)
}

// httpClients flags the default client, which has no timeout.
func httpClients(m dsl.Matcher) {
	m.Match(`http.DefaultClient`, `http.Get($*_)`, `http.Post($*_)`).
		Where(!m.File().Name.Matches(`_test\.go$`)).
		Report(`use a provider-owned *http.Client with explicit timeouts`)
}

// lockedSend flags a Send made while a sync mutex is held in the same block;
// session sends must happen outside the registry lock.
func lockedSend(m dsl.Matcher) {
	m.Match(`$mu.Lock(); $*_; $x.Send($*_); $*_; $mu.Unlock()`,
		`$mu.RLock(); $*_; $x.Send($*_); $*_; $mu.RUnlock()`).
		Report(`Send called while $mu is held; copy the sender out and release the lock first`)
}
