/*
Package clients provides a client library for the access-key registry HTTP API.

RegistryClient signs mutating requests with the holder's secp256k1 key, using the
scheme described in package api, and turns error responses into *api.ResponseError
values that unwrap to the registry's sentinel errors.

# Example Usage

	key, _ := crypto.HexToECDSA("your-private-key-hex")
	client := clients.NewRegistryClient("http://localhost:8080", key)

	id, err := client.Mint(ctx, api.MintRequest{
		Owner:           client.Address(),
		ContentRef:      "course-101",
		DurationSeconds: 30 * 24 * 3600,
		Transferable:    true,
	})

	err = client.Transfer(ctx, id, recipient)
	if errors.Is(err, interfaces.ErrExpired) {
		// renew
	}
*/
package clients
