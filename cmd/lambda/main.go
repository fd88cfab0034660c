package main

import (
	"context"

	"github.com/mmayman666/Otouri-app-final-sub001/app"
	"github.com/mmayman666/Otouri-app-final-sub001/app/config"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/sirupsen/logrus"
)

var ginLambda *ginadapter.GinLambda

// init runs once per Lambda container (cold start)
func init() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}

	// The DB pool and provider clients live for the container's lifetime.
	server, _, err := app.Bootstrap(context.Background(), cfg)
	if err != nil {
		logrus.Fatalf("failed to initialize server: %v", err)
	}

	ginLambda = ginadapter.New(server.Router())
}

// Handler is the Lambda entrypoint for API Gateway REST/HTTP API (proxy integration)
func Handler(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	return ginLambda.ProxyWithContext(ctx, req)
}

func main() {
	lambda.Start(Handler)
}
