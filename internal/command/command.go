// Package command implements the CommandQueue and Engine (spec §4.5): a
// multi-producer single-consumer queue that isolates the audio thread
// from UI-thread mutations, and the drain loop that applies commands,
// advances the clock, evaluates patterns, and publishes a versioned
// snapshot.
package command

// Kind discriminates the payload carried by a Command. Every UI-thread
// mutation reaches the engine as one of these, never as a direct method
// call on a locked collaborator (spec §3 "Data flow: UI -> command ->
// queue -> audio-thread drain").
type Kind string

const (
	KindSetBPM          Kind = "setBPM"
	KindStartTransport  Kind = "startTransport"
	KindStopTransport   Kind = "stopTransport"
	KindResetTransport  Kind = "resetTransport"
	KindSetParameter    Kind = "setParameter"
	KindAddModule       Kind = "addModule"
	KindRemoveModule    Kind = "removeModule"
	KindConnect         Kind = "connect"
	KindDisconnect      Kind = "disconnect"
	KindModuleOperation Kind = "moduleOperation"
)

// Command is the sum type every queued mutation takes. Only the fields
// relevant to Kind are populated; the rest are zero. This mirrors the
// flat tagged-struct style the rest of this codebase uses for wire
// payloads (TriggerEvent, connection.Info) rather than an interface
// hierarchy, since the Engine drain switches on Kind exhaustively and a
// flat struct keeps that switch allocation-free.
type Command struct {
	Kind Kind

	// KindSetBPM
	BPM float32

	// KindSetParameter
	ModuleName    string
	ParameterName string
	Value         float32
	Broadcast     bool

	// KindAddModule
	TypeName     string
	InstanceName string

	// KindRemoveModule reuses ModuleName.

	// KindConnect / KindDisconnect
	SourceModule string
	TargetModule string
	ConnType     string
	SourcePath   string
	TargetPath   string
	EventName    string

	// KindModuleOperation: an opaque operation a concrete module type
	// defines for itself (spec §4.5 "+opaque module commands"); the
	// Engine looks the target module up by ModuleName and forwards
	// Op/Args to it without interpreting them.
	Op   string
	Args map[string]float32

	// Done, if non-nil, is closed after this command has been applied
	// (successfully or not). Producers that don't need confirmation leave
	// this nil. Err is set on the copy of the Command that the drain
	// holds; the producer's own copy keeps its original Err, so closing
	// Done reports completion but not the outcome.
	Done chan struct{}
	Err  error
}

// SetBPM builds a KindSetBPM command.
func SetBPM(bpm float32) Command { return Command{Kind: KindSetBPM, BPM: bpm} }

// StartTransport builds a KindStartTransport command.
func StartTransport() Command { return Command{Kind: KindStartTransport} }

// StopTransport builds a KindStopTransport command.
func StopTransport() Command { return Command{Kind: KindStopTransport} }

// ResetTransport builds a KindResetTransport command.
func ResetTransport() Command { return Command{Kind: KindResetTransport} }

// SetParameter builds a KindSetParameter command.
func SetParameter(moduleName, parameterName string, value float32, broadcast bool) Command {
	return Command{Kind: KindSetParameter, ModuleName: moduleName, ParameterName: parameterName, Value: value, Broadcast: broadcast}
}

// AddModule builds a KindAddModule command. instanceName == "" asks the
// factory to generate one.
func AddModule(typeName, instanceName string) Command {
	return Command{Kind: KindAddModule, TypeName: typeName, InstanceName: instanceName}
}

// RemoveModule builds a KindRemoveModule command.
func RemoveModule(moduleName string) Command {
	return Command{Kind: KindRemoveModule, ModuleName: moduleName}
}

// Connect builds a KindConnect command.
func Connect(source, target, connType, sourcePath, targetPath, eventName string) Command {
	return Command{Kind: KindConnect, SourceModule: source, TargetModule: target, ConnType: connType, SourcePath: sourcePath, TargetPath: targetPath, EventName: eventName}
}

// Disconnect builds a KindDisconnect command.
func Disconnect(source, target, connType, sourcePath, targetPath string) Command {
	return Command{Kind: KindDisconnect, SourceModule: source, TargetModule: target, ConnType: connType, SourcePath: sourcePath, TargetPath: targetPath}
}

// ModuleOperation builds a KindModuleOperation command.
func ModuleOperation(moduleName, op string, args map[string]float32) Command {
	return Command{Kind: KindModuleOperation, ModuleName: moduleName, Op: op, Args: args}
}
