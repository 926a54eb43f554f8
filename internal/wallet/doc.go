// Package wallet keeps the wallet panel's snapshot for a session: balance,
// owned objects and recent transactions on the selected network. Each refresh
// replaces the whole snapshot; chain failures degrade to an empty snapshot
// plus a toast instead of an error.
package wallet
