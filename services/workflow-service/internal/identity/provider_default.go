//go:build !protogen

package identity

// NewRemoteProvider requires generated gRPC stubs; without them there is no
// remote provider and callers use the local projection.
func NewRemoteProvider(_ string) (Provider, error) {
	return nil, nil
}
