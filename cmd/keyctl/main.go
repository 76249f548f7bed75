package main

import (
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/accesskeys-registry/api"
	"github.com/ruteri/accesskeys-registry/api/clients"
	"github.com/ruteri/accesskeys-registry/cmd/flags"
	"github.com/ruteri/accesskeys-registry/interfaces"
	"github.com/urfave/cli/v2"
)

var flagKeyFile = &cli.StringFlag{
	Name:    "key-file",
	Value:   "accesskeys.key",
	Usage:   "hex-encoded secp256k1 private key used to sign requests",
	EnvVars: []string{"ACCESSKEYS_KEY_FILE"},
}

var flagTimeout = &cli.DurationFlag{
	Name:  "timeout",
	Value: 30 * time.Second,
	Usage: "HTTP request timeout",
}

var flagContent = &cli.StringFlag{Name: "content", Usage: "content reference", Required: true}

const usage string = `Manage access keys in an access-key registry.

Signed commands (mint, transfer, freeze, ...) read the private key from --key-file.
Create one with 'keyctl generate-key'.`

func main() {
	app := &cli.App{
		Name:  "keyctl",
		Usage: usage,
		Flags: []cli.Flag{
			flags.ServerAddrFlag,
			flagKeyFile,
			flagTimeout,
		},
		Commands: []*cli.Command{
			{
				Name:  "generate-key",
				Usage: "Generate a new signing key and write it to --key-file",
				Action: func(cCtx *cli.Context) error {
					path := cCtx.String(flagKeyFile.Name)
					if _, err := os.Stat(path); err == nil {
						return fmt.Errorf("%s already exists", path)
					}
					key, err := crypto.GenerateKey()
					if err != nil {
						return err
					}
					if err := crypto.SaveECDSA(path, key); err != nil {
						return fmt.Errorf("failed to save key: %w", err)
					}
					fmt.Println(crypto.PubkeyToAddress(key.PublicKey).Hex())
					return nil
				},
			},
			{
				Name:  "address",
				Usage: "Print the address of --key-file",
				Action: func(cCtx *cli.Context) error {
					key, err := loadKey(cCtx)
					if err != nil {
						return err
					}
					fmt.Println(crypto.PubkeyToAddress(key.PublicKey).Hex())
					return nil
				},
			},
			{
				Name:      "initialize",
				Usage:     "Set the registry admin",
				ArgsUsage: "<admin-address>",
				Action: func(cCtx *cli.Context) error {
					admin, err := addressArg(cCtx, 0)
					if err != nil {
						return err
					}
					return newClient(cCtx, nil).Initialize(cCtx.Context, admin)
				},
			},
			{
				Name:  "admin",
				Usage: "Print the registry admin",
				Action: func(cCtx *cli.Context) error {
					admin, err := newClient(cCtx, nil).Admin(cCtx.Context)
					if err != nil {
						return err
					}
					return printJSON(api.AdminResponse{Admin: admin})
				},
			},
			{
				Name:  "mint",
				Usage: "Mint a credential",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "owner", Usage: "owner address (defaults to the signer)"},
					flagContent,
					&cli.Int64Flag{Name: "price", Usage: "price paid"},
					&cli.DurationFlag{Name: "duration", Value: 30 * 24 * time.Hour, Usage: "validity period"},
					&cli.BoolFlag{Name: "transferable", Value: true, Usage: "allow transfers"},
				},
				Action: func(cCtx *cli.Context) error {
					client, err := signingClient(cCtx)
					if err != nil {
						return err
					}
					owner := client.Address()
					if s := cCtx.String("owner"); s != "" {
						if owner, err = interfaces.NewAddressFromHex(s); err != nil {
							return err
						}
					}
					id, err := client.Mint(cCtx.Context, api.MintRequest{
						Owner:           owner,
						ContentRef:      cCtx.String(flagContent.Name),
						Price:           cCtx.Int64("price"),
						DurationSeconds: int64(cCtx.Duration("duration").Seconds()),
						Transferable:    cCtx.Bool("transferable"),
					})
					if err != nil {
						return err
					}
					return printJSON(api.MintResponse{ID: id})
				},
			},
			{
				Name:      "show",
				Usage:     "Show a credential",
				ArgsUsage: "<credential-id>",
				Action: func(cCtx *cli.Context) error {
					id, err := credentialIDArg(cCtx, 0)
					if err != nil {
						return err
					}
					cred, err := newClient(cCtx, nil).GetCredential(cCtx.Context, id)
					if err != nil {
						return err
					}
					return printJSON(cred)
				},
			},
			{
				Name:      "transfer",
				Usage:     "Transfer a credential you own",
				ArgsUsage: "<credential-id> <to-address>",
				Action: func(cCtx *cli.Context) error {
					id, err := credentialIDArg(cCtx, 0)
					if err != nil {
						return err
					}
					to, err := addressArg(cCtx, 1)
					if err != nil {
						return err
					}
					client, err := signingClient(cCtx)
					if err != nil {
						return err
					}
					return client.Transfer(cCtx.Context, id, to)
				},
			},
			freezeCommand("freeze", "Freeze a credential", true),
			freezeCommand("unfreeze", "Unfreeze a credential", false),
			{
				Name:      "expire",
				Usage:     "Deactivate a credential past its expiry",
				ArgsUsage: "<credential-id>",
				Action: func(cCtx *cli.Context) error {
					id, err := credentialIDArg(cCtx, 0)
					if err != nil {
						return err
					}
					changed, err := newClient(cCtx, nil).ExpireCredential(cCtx.Context, id)
					if err != nil {
						return err
					}
					return printJSON(api.ChangedResponse{Changed: changed})
				},
			},
			{
				Name:      "verify",
				Usage:     "Check whether a user may access a credential's content",
				ArgsUsage: "<user-address> <credential-id>",
				Action: func(cCtx *cli.Context) error {
					user, err := addressArg(cCtx, 0)
					if err != nil {
						return err
					}
					id, err := credentialIDArg(cCtx, 1)
					if err != nil {
						return err
					}
					ok, err := newClient(cCtx, nil).VerifyAccess(cCtx.Context, user, id)
					if err != nil {
						return err
					}
					return printJSON(api.AccessResponse{User: user, CredentialID: id, Access: ok})
				},
			},
			{
				Name:      "balance",
				Usage:     "Show a principal's credential counts",
				ArgsUsage: "<address>",
				Action: func(cCtx *cli.Context) error {
					addr, err := addressArg(cCtx, 0)
					if err != nil {
						return err
					}
					balances, err := newClient(cCtx, nil).GetBalance(cCtx.Context, addr)
					if err != nil {
						return err
					}
					return printJSON(api.BalanceResponse{Principal: addr, Balances: balances})
				},
			},
			{
				Name:      "list",
				Usage:     "List a principal's credentials",
				ArgsUsage: "<address>",
				Action: func(cCtx *cli.Context) error {
					addr, err := addressArg(cCtx, 0)
					if err != nil {
						return err
					}
					creds, err := newClient(cCtx, nil).GetUserCredentials(cCtx.Context, addr)
					if err != nil {
						return err
					}
					return printJSON(api.CredentialsResponse{Principal: addr, Credentials: creds})
				},
			},
			{
				Name:      "sweep",
				Usage:     "Move a principal's expired credentials out of the active set",
				ArgsUsage: "<address>",
				Action: func(cCtx *cli.Context) error {
					addr, err := addressArg(cCtx, 0)
					if err != nil {
						return err
					}
					changed, err := newClient(cCtx, nil).SweepExpired(cCtx.Context, addr)
					if err != nil {
						return err
					}
					return printJSON(api.ChangedResponse{Changed: changed})
				},
			},
			accountFreezeCommand("freeze-account", "Freeze an account (admin)", true),
			accountFreezeCommand("unfreeze-account", "Unfreeze an account (admin)", false),
			{
				Name:      "account-frozen",
				Usage:     "Check an account freeze",
				ArgsUsage: "<address>",
				Action: func(cCtx *cli.Context) error {
					addr, err := addressArg(cCtx, 0)
					if err != nil {
						return err
					}
					frozen, err := newClient(cCtx, nil).IsAccountFrozen(cCtx.Context, addr)
					if err != nil {
						return err
					}
					return printJSON(api.FrozenResponse{Account: addr, Frozen: frozen})
				},
			},
			{
				Name:      "nonce",
				Usage:     "Show the last request nonce the registry accepted from an address",
				ArgsUsage: "<address>",
				Action: func(cCtx *cli.Context) error {
					addr, err := addressArg(cCtx, 0)
					if err != nil {
						return err
					}
					nonce, err := newClient(cCtx, nil).Nonce(cCtx.Context, addr)
					if err != nil {
						return err
					}
					return printJSON(api.NonceResponse{Principal: addr, Nonce: nonce})
				},
			},
			{
				Name:  "set-content",
				Usage: "Register or replace content metadata, signed by the creator",
				Flags: []cli.Flag{
					flagContent,
					&cli.StringFlag{Name: "title", Required: true},
					&cli.StringFlag{Name: "description"},
					&cli.Int64Flag{Name: "price"},
					&cli.UintFlag{Name: "max-keys", Usage: "maximum keys to issue, 0 for unlimited"},
					&cli.StringFlag{Name: "creator", Usage: "creator address (defaults to the signer)"},
				},
				Action: func(cCtx *cli.Context) error {
					client, err := signingClient(cCtx)
					if err != nil {
						return err
					}
					creator := client.Address()
					if s := cCtx.String("creator"); s != "" {
						if creator, err = interfaces.NewAddressFromHex(s); err != nil {
							return err
						}
					}
					return client.SetContentMetadata(cCtx.Context, interfaces.ContentMetadata{
						ContentRef:  cCtx.String(flagContent.Name),
						Title:       cCtx.String("title"),
						Description: cCtx.String("description"),
						Creator:     creator,
						Price:       cCtx.Int64("price"),
						MaxKeys:     uint32(cCtx.Uint("max-keys")),
					})
				},
			},
			{
				Name:      "get-content",
				Usage:     "Show content metadata",
				ArgsUsage: "<content-ref>",
				Action: func(cCtx *cli.Context) error {
					if cCtx.NArg() < 1 {
						return fmt.Errorf("missing content reference")
					}
					meta, err := newClient(cCtx, nil).GetContentMetadata(cCtx.Context, cCtx.Args().Get(0))
					if err != nil {
						return err
					}
					return printJSON(meta)
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func freezeCommand(name, usage string, freeze bool) *cli.Command {
	return &cli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: "<credential-id>",
		Action: func(cCtx *cli.Context) error {
			id, err := credentialIDArg(cCtx, 0)
			if err != nil {
				return err
			}
			client, err := signingClient(cCtx)
			if err != nil {
				return err
			}
			return client.Freeze(cCtx.Context, id, freeze)
		},
	}
}

func accountFreezeCommand(name, usage string, freeze bool) *cli.Command {
	return &cli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: "<address>",
		Action: func(cCtx *cli.Context) error {
			addr, err := addressArg(cCtx, 0)
			if err != nil {
				return err
			}
			client, err := signingClient(cCtx)
			if err != nil {
				return err
			}
			return client.FreezeAccount(cCtx.Context, addr, freeze)
		},
	}
}

func loadKey(cCtx *cli.Context) (*ecdsa.PrivateKey, error) {
	key, err := crypto.LoadECDSA(cCtx.String(flagKeyFile.Name))
	if err != nil {
		return nil, fmt.Errorf("failed to load key from %s: %w", cCtx.String(flagKeyFile.Name), err)
	}
	return key, nil
}

func newClient(cCtx *cli.Context, key *ecdsa.PrivateKey) *clients.RegistryClient {
	return clients.NewRegistryClient(cCtx.String(flags.ServerAddrFlag.Name), key, cCtx.Duration(flagTimeout.Name))
}

func signingClient(cCtx *cli.Context) (*clients.RegistryClient, error) {
	key, err := loadKey(cCtx)
	if err != nil {
		return nil, err
	}
	return newClient(cCtx, key), nil
}

func addressArg(cCtx *cli.Context, n int) (interfaces.Address, error) {
	if cCtx.NArg() <= n {
		return interfaces.Address{}, fmt.Errorf("missing address argument")
	}
	return interfaces.NewAddressFromHex(cCtx.Args().Get(n))
}

func credentialIDArg(cCtx *cli.Context, n int) (interfaces.CredentialID, error) {
	if cCtx.NArg() <= n {
		return 0, fmt.Errorf("missing credential id argument")
	}
	id, err := strconv.ParseUint(cCtx.Args().Get(n), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid credential id: %w", err)
	}
	return interfaces.CredentialID(id), nil
}

func printJSON(v any) error {
	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(encoded))
	return nil
}
