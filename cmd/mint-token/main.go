// mint-token issues a shop-scoped bearer token for the sync API. The
// service never mints tokens itself; an operator runs this when wiring up
// a new edge instance or a dashboard integration.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/printflowhq/printshop_backend/utils"
)

func main() {
	_ = godotenv.Load()

	var (
		shopId = flag.String("shop-id", "", "shop the token is scoped to (required)")
		userId = flag.Int("user-id", 0, "numeric user id embedded in the token")
		role   = flag.String("role", "operator", "role claim")
		hours  = flag.Int("hours", 24, "token lifetime in hours")
	)
	flag.Parse()

	if *shopId == "" {
		fmt.Fprintln(os.Stderr, "usage: mint-token --shop-id SHOP [--user-id N] [--role ROLE] [--hours H]")
		os.Exit(2)
	}

	if os.Getenv("TOKEN_HOUR_LIFESPAN") == "" {
		os.Setenv("TOKEN_HOUR_LIFESPAN", strconv.Itoa(*hours))
	}

	token, err := utils.JwtGenerate(*userId, *shopId, *role)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mint-token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
