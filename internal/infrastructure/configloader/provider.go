package configloader

import (
	"github.com/google/wire"
)

// ProviderSet exposes configuration-derived dependencies for Wire graphs.
var ProviderSet = wire.NewSet(
	ProvideBundle,
	ProvideServiceMetadata,
	ProvideServerConfig,
	ProvideDataConfig,
	ProvideStorageConfig,
	ProvideMessagingConfig,
	ProvideTranscodeConfig,
	ProvideCleanupConfig,
)

// ProvideBundle builds the configuration bundle from runtime params.
func ProvideBundle(params Params) (*Bundle, error) {
	return Build(params)
}

// ProvideServiceMetadata returns the resolved ServiceMetadata.
func ProvideServiceMetadata(b *Bundle) ServiceMetadata {
	if b == nil {
		return ServiceMetadata{}
	}
	return b.Service
}

// ProvideServerConfig returns the server section of the bootstrap configuration.
func ProvideServerConfig(b *Bundle) ServerConfig {
	if b == nil || b.Bootstrap == nil {
		return ServerConfig{}
	}
	return b.Bootstrap.Server
}

// ProvideDataConfig returns the data section of the bootstrap configuration.
func ProvideDataConfig(b *Bundle) DataConfig {
	if b == nil || b.Bootstrap == nil {
		return DataConfig{}
	}
	return b.Bootstrap.Data
}

// ProvideStorageConfig returns the object-storage section.
func ProvideStorageConfig(b *Bundle) StorageConfig {
	if b == nil || b.Bootstrap == nil {
		return StorageConfig{}
	}
	return b.Bootstrap.Storage
}

// ProvideMessagingConfig returns the messaging section.
func ProvideMessagingConfig(b *Bundle) MessagingConfig {
	if b == nil || b.Bootstrap == nil {
		return MessagingConfig{}
	}
	return b.Bootstrap.Messaging
}

// ProvideTranscodeConfig returns the transcode worker section.
func ProvideTranscodeConfig(b *Bundle) TranscodeConfig {
	if b == nil || b.Bootstrap == nil {
		return TranscodeConfig{}
	}
	return b.Bootstrap.Transcode
}

// ProvideCleanupConfig returns the cleanup scheduler section.
func ProvideCleanupConfig(b *Bundle) CleanupConfig {
	if b == nil || b.Bootstrap == nil {
		return CleanupConfig{}
	}
	return b.Bootstrap.Cleanup
}
