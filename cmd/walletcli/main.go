package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/nutcase-wallet/corewallet/cashu"
	"github.com/nutcase-wallet/corewallet/wallet"
	"github.com/urfave/cli/v2"
)

var nutw *wallet.Wallet

func setupWallet(ctx *cli.Context) error {
	cfg, err := wallet.LoadConfig(wallet.Config{})
	if err != nil {
		printErr(err)
	}

	passphrase := readPassphrase()
	nutw, err = wallet.LoadWallet(cfg, passphrase)
	if err != nil {
		printErr(err)
	}
	return nil
}

func readPassphrase() string {
	fmt.Print("wallet passphrase: ")
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		log.Fatal("error reading passphrase, please try again")
	}
	return line[:len(line)-1]
}

func main() {
	app := &cli.App{
		Name:  "nutw",
		Usage: "single-mint cashu wallet",
		Commands: []*cli.Command{
			balanceCmd,
			mintCmd,
			sendCmd,
			receiveCmd,
			payCmd,
			decodeCmd,
			infoCmd,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

var balanceCmd = &cli.Command{
	Name:   "balance",
	Usage:  "wallet balance",
	Before: setupWallet,
	Action: getBalance,
}

func getBalance(ctx *cli.Context) error {
	fmt.Printf("balance: %v sats\n", nutw.Balance())
	return nil
}

const invoiceFlag = "invoice"
const lockFlag = "lock"

var mintCmd = &cli.Command{
	Name:      "mint",
	Usage:     "request a mint quote, or redeem a paid one",
	ArgsUsage: "[AMOUNT]",
	Before:    setupWallet,
	Flags: []cli.Flag{
		&cli.StringFlag{Name: invoiceFlag, Usage: "redeem the mint quote with this id, once its invoice is paid"},
		&cli.BoolFlag{Name: lockFlag, Usage: "lock the quote to a NUT-20 signature only this wallet can produce"},
	},
	Action: mintAction,
}

func mintAction(ctx *cli.Context) error {
	if ctx.IsSet(invoiceFlag) {
		minted, err := nutw.MintTokens(context.Background(), ctx.String(invoiceFlag))
		if err != nil {
			printErr(err)
		}
		fmt.Printf("%v sats minted\n", minted)
		return nil
	}

	args := ctx.Args()
	if args.Len() < 1 {
		printErr(errors.New("specify an amount to mint"))
	}
	amount, err := strconv.ParseUint(args.First(), 10, 64)
	if err != nil {
		printErr(errors.New("invalid amount"))
	}

	quote, err := nutw.RequestMint(context.Background(), amount, ctx.Bool(lockFlag))
	if err != nil {
		printErr(err)
	}

	fmt.Printf("invoice: %v\n\n", quote.Request)
	fmt.Printf("once paid, redeem with: mint --invoice %v\n", quote.Quote)
	return nil
}

var sendCmd = &cli.Command{
	Name:      "send",
	Usage:     "generate a token for the given amount",
	ArgsUsage: "[AMOUNT]",
	Before:    setupWallet,
	Action:    send,
}

func send(ctx *cli.Context) error {
	args := ctx.Args()
	if args.Len() < 1 {
		printErr(errors.New("specify an amount to send"))
	}
	amount, err := strconv.ParseUint(args.First(), 10, 64)
	if err != nil {
		printErr(errors.New("invalid amount"))
	}

	token, err := nutw.Send(context.Background(), amount)
	if err != nil {
		printErr(err)
	}

	fmt.Println(token)
	return nil
}

var receiveCmd = &cli.Command{
	Name:      "receive",
	Usage:     "redeem a token",
	ArgsUsage: "[TOKEN]",
	Before:    setupWallet,
	Action:    receive,
}

func receive(ctx *cli.Context) error {
	args := ctx.Args()
	if args.Len() < 1 {
		printErr(errors.New("token not provided"))
	}

	received, err := nutw.Receive(context.Background(), args.First())
	if err != nil {
		printErr(err)
	}

	fmt.Printf("%v sats received\n", received)
	return nil
}

var payCmd = &cli.Command{
	Name:      "pay",
	Usage:     "pay a lightning invoice with ecash",
	ArgsUsage: "[INVOICE]",
	Before:    setupWallet,
	Action:    pay,
}

func pay(ctx *cli.Context) error {
	args := ctx.Args()
	if args.Len() < 1 {
		printErr(errors.New("specify a lightning invoice to pay"))
	}

	preimage, err := nutw.Melt(context.Background(), args.First())
	if err != nil {
		printErr(err)
	}

	fmt.Printf("invoice paid, preimage: %v\n", preimage)
	return nil
}

var decodeCmd = &cli.Command{
	Name:      "decode",
	ArgsUsage: "[TOKEN]",
	Usage:     "decode a token without redeeming it",
	Action:    decode,
}

func decode(ctx *cli.Context) error {
	args := ctx.Args()
	if args.Len() < 1 {
		printErr(errors.New("token not provided"))
	}

	token, err := cashu.DecodeToken(args.First())
	if err != nil {
		printErr(err)
	}

	jsonToken, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		printErr(err)
	}

	fmt.Println(string(jsonToken))
	return nil
}

var infoCmd = &cli.Command{
	Name:   "info",
	Usage:  "show the mint's info document",
	Before: setupWallet,
	Action: info,
}

func info(ctx *cli.Context) error {
	mintInfo, err := nutw.MintInfo(context.Background())
	if err != nil {
		printErr(err)
	}

	jsonInfo, err := json.MarshalIndent(mintInfo, "", "  ")
	if err != nil {
		printErr(err)
	}

	fmt.Println(string(jsonInfo))
	return nil
}

func printErr(msg error) {
	fmt.Println(msg.Error())
	os.Exit(1)
}
