// Package knowledge implements the namespaced, versioned record store shared by
// the specialist workers.
//
// Every record lives in a namespace: either a session id or the reserved
// GlobalNamespace holding organisational knowledge carried across sessions.
// Writes are append-only. Each Save assigns the next version for its
// (namespace, key) pair and the highest version is the current one.
//
// Two repositories back the store: MemoryRepository for tests and ephemeral
// daemons, SQLiteRepository for durable deployments. Records written to the
// global namespace are additionally indexed in a chromem-go collection so
// Search can rank them by similarity; session namespaces use substring
// matching.
package knowledge
