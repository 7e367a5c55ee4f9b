// Package license implements the client-side license subsystem: the
// entitlement record data model, the encrypted on-disk store, and the
// validation engine that decides whether this process is entitled to run.
//
// The engine answers whether this machine is licensed right now, under
// three operating conditions: fully online,
// degraded (recently online, network now down), and never-activated. Static
// checks (hardware binding, product, expiry) are always enforced locally;
// the online check interval only gates re-validation against the remote
// authority, and a bounded grace period keeps a previously-validated license
// usable while the authority is unreachable.
//
// All store and authority failures are translated into verdict reasons at
// the engine boundary; callers never see raw I/O or network errors.
package license
