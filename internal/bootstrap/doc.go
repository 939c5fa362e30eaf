// Package bootstrap implements the container entrypoint: it resolves the
// bind port and runtime settings from the process environment and launches
// the ASGI server bound to all interfaces on that port.
//
// The resolver reads the port variable itself, directly from the
// environment, instead of relying on textual ${PORT} substitution in the
// server's argument list. Substitution-based invocations break silently in
// exec form: the literal placeholder reaches the server as the port
// argument and the bind fails at runtime. Reading the environment in
// process sidesteps that entire failure class.
//
// Resolution contract:
//   - variable present and non-empty → parsed as the bind port
//   - variable unset or empty → default port 8000
//   - non-integer or out of range (1-65535) → fatal configuration error
//     before any process is started; no socket is ever opened
package bootstrap
