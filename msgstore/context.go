package msgstore

import "context"

type metadataKey struct{}

// WithMetadata returns ctx carrying message metadata. Publisher stamps
// messages published with this context, handlers receive it for the
// message being handled
func WithMetadata(ctx context.Context, md Metadata) context.Context {
	return context.WithValue(ctx, metadataKey{}, md)
}

// MetadataFrom returns metadata carried by ctx
func MetadataFrom(ctx context.Context) Metadata {
	md, _ := ctx.Value(metadataKey{}).(Metadata)

	return md
}
