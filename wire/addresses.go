package wire

import "fmt"

// Canonical property names, spec §6. Known properties are treated before
// unknown string-named ones when a property table serializes itself
// (see proptable.Table.Args).
const (
	PropName    = "name"
	PropHost    = "host"
	PropPort    = "port"
	PropDir     = "dir"
	PropType    = "type"
	PropLen     = "len"
	PropID      = "id"
	PropMin     = "min"
	PropMax     = "max"
	PropUnit    = "unit"
	PropNumInst = "numInst"
	PropMode    = "mode"
	PropExpr    = "expr"
	PropMuted   = "muted"
	PropScope   = "scope"
	PropBound   = "bound"
	PropProcess = "process"
	PropVersion = "version"
	PropIsLocal = "isLocal"
	PropData    = "data"
	PropLease   = "lease"
)

// KnownProperties lists the canonical properties in the order a property
// table should prefer when serializing, per spec §4.3 and §6.
var KnownProperties = []string{
	PropName, PropHost, PropPort, PropDir, PropType, PropLen, PropID,
	PropMin, PropMax, PropUnit, PropNumInst, PropMode, PropExpr, PropMuted,
	PropScope, PropBound, PropProcess, PropVersion, PropIsLocal, PropData,
	PropLease,
}

// Message addresses, spec §6.
const (
	AddrSync           = "/sync"
	AddrNameProbe      = "/name/probe"
	AddrNameRegistered = "/name/registered"
	AddrMap            = "/map"
	AddrMapModify      = "/mapModify"
	AddrUnmap          = "/unmap"
)

// DeviceAddr builds "/<device>/<suffix>" for per-device control messages
// (subscribe, unsubscribe, signal, signal/removed).
func DeviceAddr(device, suffix string) string {
	return fmt.Sprintf("/%s/%s", device, suffix)
}

// SignalAddr builds the path a signal update or release travels on:
// "/<device>/<signal>" or "/<device>/<signal>/release".
func SignalAddr(device, signal string) string {
	return fmt.Sprintf("/%s/%s", device, signal)
}

func SignalReleaseAddr(device, signal string) string {
	return fmt.Sprintf("/%s/%s/release", device, signal)
}

// AtKey prefixes a property name with "@", as used in message argument
// groups ("@lease", "@version", "@min", ...).
func AtKey(name string) string { return "@" + name }
