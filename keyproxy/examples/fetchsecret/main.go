package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	keyproxy "github.com/grasp-labs/ds-keyproxy-go-sdk/keyproxy"
)

func main() {
	ctx := context.Background()

	// session token kept next to the example
	store := keyproxy.NewFileTokenStore(filepath.Join(os.TempDir(), "keyproxy-example", "session.yaml"))
	session, err := keyproxy.OpenSession(ctx, store)
	if err != nil {
		panic(err)
	}

	client := keyproxy.NewClient(os.Getenv("KEYPROXY_BASE_URL"), keyproxy.WithTokenSource(session))

	email := os.Getenv("KEYPROXY_EMAIL")
	if !session.IsAuthenticated() {
		tok, err := client.Login(ctx, email, os.Getenv("KEYPROXY_PASSWORD"))
		if err != nil {
			panic(keyproxy.UserMessage(err))
		}
		if err := session.SignIn(ctx, tok); err != nil {
			panic(err)
		}
	}

	tok, _ := session.Token()
	secret, err := client.FetchSecret(ctx, email, os.Getenv("KEYPROXY_SECRET_NAME"), tok)
	if err != nil {
		panic(err)
	}
	fmt.Println("secret:", secret)
}
