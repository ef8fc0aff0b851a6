package modules

import "github.com/b0yaux/enginecore/internal/module"

// RegisterAll registers every concrete module type's creator with f.
// Called once during engine construction (cmd/enginectl), before the
// first AddModule command or EnsureSystemModules call can reach the
// factory.
func RegisterAll(f *module.Factory) {
	f.Register(SamplerTypeName, NewSampler)
	f.Register(SequencerTypeName, NewSequencer)
	f.Register(MixerTypeName, NewMixer)
	f.Register(AudioOutputTypeName, NewAudioOutput)
	f.Register(VideoOutputTypeName, NewVideoOutput)
}
