// Package tgui provides small Telegram UI helpers:
//   - Inline keyboard builders
//   - Callback data helpers (ns:action:payload)
//   - A message builder that escapes HTML by default
//   - Ruble price formatting for prices kept in minor units
package tgui
