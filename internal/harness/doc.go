// Package harness runs YAML scenarios against the application sources.
//
// A scenario builds a bundle from its initial values, wires Stores on a
// simulated clock, executes steps and records every value published by the
// sources it subscribed to. Assertions and golden files then check the
// recorded trace.
//
// # Scenario Format
//
//	name: repo-has-new-commits
//	description: "What this scenario validates"
//	start: "2024-01-01T00:00:00Z"   # simulated clock start (optional)
//	tick_interval: 1s               # currentDate period (optional)
//	settings_files: [global.cue]    # CUE cascade, relative to the file (optional)
//	settings: { theme: dark }       # overlaid on the cascade (optional)
//	user: { id: "1", username: alice }
//	light_theme: false
//	steps:
//	  - subscribe: repoHasNewCommits
//	  - set_repo: { name: github.com/example/repo, oid: a1, date: "2024-01-01T00:00:00Z" }
//	  - advance: 3s
//	  - unsubscribe: currentDate
//	assertions:
//	  - type: emissions
//	    source: repoHasNewCommits
//	    values: [false, false, true]
//	  - type: count
//	    source: currentDate
//	    count: 4
//	  - type: active_tickers
//	    count: 0
//
// Steps: subscribe, unsubscribe, set_repo, set_theme, set_user, sign_out,
// set_settings, advance. Sources: settings, user, platformContext,
// isLightTheme, currentDate, resolvedRepo, repoHasNewCommits.
//
// # Determinism
//
// The run ID is fixed (run_id or DefaultRunID), seq numbers start at 1 and
// time only moves through advance steps, so the same scenario always yields
// a byte-identical trace.
package harness
