// Package project implements leader-arbitrated project event logs.
//
// Every project names one state-sync leader. Only the leader orders events:
// it appends them to its own log and broadcasts them to the other members,
// whose copies accept exactly the next seq_no and nothing else.
//
// The Service talks to its environment through narrow contracts (Stash,
// Network, Notifier, Roles). StoreStash and StoreNotifier back them with the
// SQLite store; internal/transport provides the Network.
package project
