// Package gorules holds the ruleguard checks run by gocritic in CI.
package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

func smells(m dsl.Matcher) {
	// Two guards in a row that return the same value read better merged.
	m.Match(`if $c1 { return $ret }; if $c2 { return $ret }`).
		Report(`two consecutive guards return the same value; consider merging conditions with ||`).
		Suggest(`if $c1 || $c2 { return $ret }`)

	m.Match(`if $c1 { continue }; if $c2 { continue }`).
		Report(`two consecutive continues; consider merging conditions with ||`).
		Suggest(`if $c1 || $c2 { continue }`)

	m.Match(`for $*_ { for $*_ { $*_ } }`).
		Report(`nested for-loop; consider extracting inner loop logic or reducing algorithmic complexity`)
}

// injectedLogger flags the package-level slog functions: loggers are passed
// in so tests can silence or capture them.
func injectedLogger(m dsl.Matcher) {
	m.Match(
		`slog.Debug($*_)`, `slog.Info($*_)`, `slog.Warn($*_)`, `slog.Error($*_)`,
		`slog.DebugContext($*_)`, `slog.InfoContext($*_)`, `slog.WarnContext($*_)`, `slog.ErrorContext($*_)`,
	).
		Where(!m.File().PkgPath.Matches(`/cmd/`)).
		Report(`use the injected *slog.Logger instead of the slog default logger`)
}

// scopedQueries flags tool and store queries that bypass the caller scope.
func scopedQueries(m dsl.Matcher) {
	m.Match(`$db.QueryContext($*_)`, `$db.QueryRowContext($*_)`, `$db.ExecContext($*_)`).
		Where(m["db"].Type.Is(`*sqldb.DB`) &&
			(m.File().PkgPath.Matches(`/domain/tool$`) || m.File().PkgPath.Matches(`/domain/conversation$`))).
		Report(`run domain queries through *scope.Scope so they are filtered by the caller`)
}
