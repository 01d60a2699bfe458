package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/urfave/cli/v2"

	"github.com/ruteri/certificate-trust-backend/api"
	"github.com/ruteri/certificate-trust-backend/api/clients"
	"github.com/ruteri/certificate-trust-backend/chain"
	"github.com/ruteri/certificate-trust-backend/cmd/flags"
	"github.com/ruteri/certificate-trust-backend/interfaces"
	"github.com/ruteri/certificate-trust-backend/registry"
)

var flagServerAddr = &cli.StringFlag{
	Name:    "server-addr",
	Value:   "http://127.0.0.1:8080",
	Usage:   "certificate trust API to talk to",
	EnvVars: []string{"CERTCTL_SERVER"},
}
var flagInstitution = &cli.StringFlag{
	Name:    "institution",
	Usage:   "institution id sent as the identity header",
	EnvVars: []string{"CERTCTL_INSTITUTION"},
}
var flagNetwork = &cli.StringFlag{
	Name:    "network",
	Value:   "localhost",
	Usage:   "ledger network name",
	EnvVars: []string{"CERTCTL_NETWORK"},
}
var flagWallet = &cli.StringFlag{
	Name:    "wallet",
	Usage:   "institution wallet address; derived from --privkey when omitted",
	EnvVars: []string{"CERTCTL_WALLET"},
}
var flagPrivateKey = &cli.StringFlag{
	Name:    "privkey",
	Usage:   "hex private key used to send prepared transactions",
	EnvVars: []string{"CERTCTL_PRIVKEY"},
}
var flagRPCURL = &cli.StringFlag{
	Name:    "rpc-url",
	Value:   "http://127.0.0.1:8545",
	Usage:   "RPC endpoint used to send prepared transactions",
	EnvVars: []string{"CERTCTL_RPC_URL"},
}
var flagStudentID = &cli.StringFlag{
	Name:     "student-id",
	Required: true,
}

func main() {
	if err := flags.LoadDotEnv(os.Getenv("DOTENV_FILE")); err != nil {
		log.Fatal(err)
	}

	app := &cli.App{
		Name:  "certctl",
		Usage: "Issue, revoke and verify certificates against the certificate trust API",
		Flags: []cli.Flag{flagServerAddr, flagInstitution, flagNetwork},
		Commands: []*cli.Command{
			{
				Name:  "signup",
				Usage: "Create an institution",
				Flags: []cli.Flag{
					flagWallet,
					&cli.StringFlag{Name: "name", Required: true},
					&cli.StringFlag{Name: "domain"},
				},
				Action: func(cCtx *cli.Context) error {
					institution, err := newClient(cCtx).Signup(cCtx.Context, api.SignupRequest{
						WalletAddress: cCtx.String(flagWallet.Name),
						DisplayName:   cCtx.String("name"),
						Domain:        cCtx.String("domain"),
					})
					if err != nil {
						return err
					}
					return printJSON(institution)
				},
			},
			{
				Name:  "profile",
				Usage: "Show the institution and its contracts",
				Action: func(cCtx *cli.Context) error {
					profile, err := newClient(cCtx).Profile(cCtx.Context)
					if err != nil {
						return err
					}
					return printJSON(profile)
				},
			},
			{
				Name:  "register-contract",
				Usage: "Record a deployed certificate contract for the network",
				Flags: []cli.Flag{
					flagWallet,
					flagPrivateKey,
					&cli.StringFlag{Name: "address", Required: true, Usage: "deployed contract address"},
				},
				Action: registerContract,
			},
			{
				Name:  "issue",
				Usage: "Prepare, send and confirm a certificate issuance",
				Flags: []cli.Flag{
					flagWallet,
					flagPrivateKey,
					flagRPCURL,
					flagStudentID,
					&cli.StringFlag{Name: "student-name", Required: true},
					&cli.StringFlag{Name: "student-email"},
					&cli.StringFlag{Name: "course"},
					&cli.StringFlag{Name: "certificate-type"},
					&cli.StringFlag{Name: "year"},
					&cli.StringFlag{Name: "file", Required: true, Usage: "certificate document"},
				},
				Action: issue,
			},
			{
				Name:  "revoke",
				Usage: "Prepare, send and confirm a certificate revocation",
				Flags: []cli.Flag{
					flagWallet,
					flagPrivateKey,
					flagRPCURL,
					flagStudentID,
					&cli.StringFlag{Name: "reason", Required: true},
				},
				Action: revoke,
			},
			{
				Name:  "list",
				Usage: "List the institution's certificates on the network",
				Action: func(cCtx *cli.Context) error {
					list, err := newClient(cCtx).Certificates(cCtx.Context, network(cCtx))
					if err != nil {
						return err
					}
					return printJSON(list)
				},
			},
			{
				Name:      "verify",
				Usage:     "Verify a certificate by its issuance transaction",
				ArgsUsage: "<tx_hash>",
				Action: func(cCtx *cli.Context) error {
					result, err := newClient(cCtx).Verify(cCtx.Context, network(cCtx), cCtx.Args().First())
					if err != nil {
						return err
					}
					return printJSON(result)
				},
			},
			{
				Name:  "status",
				Usage: "Show the live revocation status of a certificate",
				Flags: []cli.Flag{
					flagStudentID,
					&cli.StringFlag{Name: "issuer", Required: true, Usage: "issuing institution id"},
				},
				Action: func(cCtx *cli.Context) error {
					status, err := newClient(cCtx).Status(cCtx.Context, network(cCtx),
						interfaces.InstitutionID(cCtx.String("issuer")), cCtx.String(flagStudentID.Name))
					if err != nil {
						return err
					}
					return printJSON(status)
				},
			},
			{
				Name:      "hash",
				Usage:     "Compute the document hash of a file locally",
				ArgsUsage: "<file>",
				Action: func(cCtx *cli.Context) error {
					f, err := os.Open(cCtx.Args().First())
					if err != nil {
						return err
					}
					defer f.Close()
					id, err := interfaces.HashDocument(f)
					if err != nil {
						return err
					}
					fmt.Println(id.String())
					return nil
				},
			},
			{
				Name:      "verify-document",
				Usage:     "Compare a file with an expected document hash",
				ArgsUsage: "<file>",
				Flags:     []cli.Flag{&cli.StringFlag{Name: "expected", Required: true}},
				Action: func(cCtx *cli.Context) error {
					path := cCtx.Args().First()
					f, err := os.Open(path)
					if err != nil {
						return err
					}
					defer f.Close()
					match, err := newClient(cCtx).VerifyDocument(cCtx.Context, cCtx.String("expected"), filepath.Base(path), f)
					if err != nil {
						return err
					}
					return printJSON(match)
				},
			},
			{
				Name:      "decode",
				Usage:     "Decode an issuance transaction directly from the ledger",
				ArgsUsage: "<tx_hash>",
				Flags:     []cli.Flag{flags.NetworksFileFlag},
				Action: func(cCtx *cli.Context) error {
					networks, err := flags.LoadNetworks(cCtx, flags.SetupLogger(cCtx))
					if err != nil {
						return err
					}
					defer networks.Close()
					reader, err := networks.ReaderFor(cCtx.Context, network(cCtx))
					if err != nil {
						return err
					}
					fields, err := reader.DecodeTransaction(cCtx.Context, cCtx.Args().First())
					if err != nil {
						return err
					}
					return printJSON(fields)
				},
			},
			{
				Name:  "verify-domain",
				Usage: "Operator: check an institution's _certificate-trust TXT record and record the outcome",
				Flags: slices.Concat([]cli.Flag{
					flags.DatabaseFlag,
					&cli.StringFlag{Name: "id", Required: true, Usage: "institution id"},
					&cli.StringFlag{Name: "resolver", Usage: "DNS resolver host:port; defaults to /etc/resolv.conf", EnvVars: []string{"CERTCTL_RESOLVER"}},
					&cli.DurationFlag{Name: "dns-timeout", Value: 5 * time.Second},
				}, flags.CommonFlags),
				Action: func(cCtx *cli.Context) error {
					logger := flags.SetupLogger(cCtx)
					db, err := flags.OpenDatabase(cCtx)
					if err != nil {
						return err
					}
					verifier, err := registry.NewDomainVerifier(cCtx.String("resolver"), cCtx.Duration("dns-timeout"), logger)
					if err != nil {
						return err
					}
					institution, err := verifier.VerifyInstitution(cCtx.Context, registry.NewInstitutionStore(db), interfaces.InstitutionID(cCtx.String("id")))
					if err != nil {
						return err
					}
					return printJSON(institution)
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newClient(cCtx *cli.Context) *clients.Client {
	return clients.NewClient(cCtx.String(flagServerAddr.Name), interfaces.InstitutionID(cCtx.String(flagInstitution.Name)))
}

func network(cCtx *cli.Context) interfaces.NetworkName {
	return interfaces.NetworkName(cCtx.String(flagNetwork.Name))
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// wallet returns --wallet, or the address of --privkey.
func wallet(cCtx *cli.Context) (string, error) {
	if w := cCtx.String(flagWallet.Name); w != "" {
		return w, nil
	}
	if cCtx.String(flagPrivateKey.Name) == "" {
		return "", fmt.Errorf("either --%s or --%s is required", flagWallet.Name, flagPrivateKey.Name)
	}
	key, err := crypto.HexToECDSA(cCtx.String(flagPrivateKey.Name))
	if err != nil {
		return "", fmt.Errorf("failed to parse private key: %w", err)
	}
	return crypto.PubkeyToAddress(key.PublicKey).Hex(), nil
}

func registerContract(cCtx *cli.Context) error {
	client := newClient(cCtx)
	w, err := wallet(cCtx)
	if err != nil {
		return err
	}

	descriptor, err := client.PrepareDeployment(cCtx.Context, api.PrepareDeploymentRequest{Network: network(cCtx), WalletAddress: w})
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Wallet balance on %s (chain %s): %s ether\n", descriptor.Network, descriptor.ChainID, descriptor.Balance)

	registration, err := client.ConfirmDeployment(cCtx.Context, api.ConfirmDeploymentRequest{
		Network:         network(cCtx),
		ContractAddress: cCtx.String("address"),
	})
	if err != nil {
		return err
	}
	return printJSON(registration)
}

func issue(cCtx *cli.Context) error {
	client := newClient(cCtx)
	w, err := wallet(cCtx)
	if err != nil {
		return err
	}

	path := cCtx.String("file")
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	descriptor, err := client.PrepareIssuance(cCtx.Context, map[string]string{
		api.FormNetwork:          network(cCtx).String(),
		api.FormWalletAddress:    w,
		api.FormStudentID:        cCtx.String(flagStudentID.Name),
		api.FormStudentName:      cCtx.String("student-name"),
		api.FormCourse:           cCtx.String("course"),
		api.FormCertificateType:  cCtx.String("certificate-type"),
		api.FormYearOfGraduation: cCtx.String("year"),
	}, filepath.Base(path), f)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Prepared issuance of document %s to %s\n", descriptor.DocumentHash, descriptor.ContractAddress)

	tx, err := send(cCtx, descriptor.ContractAddress, descriptor.Calldata)
	if err != nil {
		return err
	}

	txHash, err := client.ConfirmIssuance(cCtx.Context, api.ConfirmIssuanceRequest{
		Network:         network(cCtx),
		TransactionHash: tx.Hash().Hex(),
		StudentID:       descriptor.Fields.StudentID,
		StudentEmail:    cCtx.String("student-email"),
		StudentName:     descriptor.Fields.StudentName,
		UploadHandle:    descriptor.UploadHandle,
	})
	if err != nil {
		return err
	}
	return printJSON(api.TransactionResponse{TransactionHash: txHash})
}

func revoke(cCtx *cli.Context) error {
	client := newClient(cCtx)
	w, err := wallet(cCtx)
	if err != nil {
		return err
	}

	descriptor, err := client.PrepareRevocation(cCtx.Context, api.PrepareRevocationRequest{
		Network:       network(cCtx),
		WalletAddress: w,
		StudentID:     cCtx.String(flagStudentID.Name),
		Reason:        cCtx.String("reason"),
	})
	if err != nil {
		return err
	}

	tx, err := send(cCtx, descriptor.ContractAddress, descriptor.Calldata)
	if err != nil {
		return err
	}

	txHash, err := client.ConfirmRevocation(cCtx.Context, api.ConfirmRevocationRequest{
		Network:         network(cCtx),
		StudentID:       descriptor.StudentID,
		TransactionHash: tx.Hash().Hex(),
	})
	if err != nil {
		return err
	}
	return printJSON(api.TransactionResponse{TransactionHash: txHash})
}

// send signs prepared calldata with --privkey, submits it and waits until it is mined.
func send(cCtx *cli.Context, contract interfaces.ContractAddress, calldata string) (*types.Transaction, error) {
	ctx := cCtx.Context
	if ctx == nil {
		ctx = context.Background()
	}

	data, err := hexutil.Decode(calldata)
	if err != nil {
		return nil, fmt.Errorf("invalid calldata: %w", err)
	}
	key, err := crypto.HexToECDSA(cCtx.String(flagPrivateKey.Name))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	ethClient, err := ethclient.DialContext(ctx, cCtx.String(flagRPCURL.Name))
	if err != nil {
		return nil, fmt.Errorf("failed to dial RPC: %w", err)
	}
	defer ethClient.Close()

	chainID, err := ethClient.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	auth, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		return nil, err
	}

	transactor := chain.NewTransactor(ethClient)
	transactor.SetTransactOpts(auth)
	tx, err := transactor.SendCalldata(ctx, contract, data)
	if err != nil {
		return nil, fmt.Errorf("failed to send transaction: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Sent transaction %s, waiting for it to be mined\n", tx.Hash().Hex())

	receipt, err := bind.WaitMined(ctx, ethClient, tx)
	if err != nil {
		return nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("transaction %s reverted", tx.Hash().Hex())
	}
	return tx, nil
}
