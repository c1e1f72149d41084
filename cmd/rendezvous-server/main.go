// Command rendezvous-server is the Lambda-backed fallback registry
// behind internal/discovery.RegistryClient: a ticket tag to
// candidate-address lookup for when mDNS can't find the peer (qdrop is
// off the same LAN, or multicast is blocked). Grounded on
// cmd/registry/main.go, rekeyed from the teacher's human-chosen
// {code,ip,port} record to a {ticket_tag,candidates[]} one, since a
// qdrop ticket already carries its own candidate list and only needs
// the registry to republish it under a stable, non-guessable tag.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

var (
	svc       *dynamodb.Client
	tableName string
)

func init() {
	tableName = os.Getenv("TABLE_NAME")
	if tableName == "" {
		log.Println("TABLE_NAME env var is empty, defaulting to QdropRendezvous")
		tableName = "QdropRendezvous"
	}

	cfg, err := config.LoadDefaultConfig(context.TODO())
	if err != nil {
		log.Fatalf("unable to load SDK config, %v", err)
	}

	svc = dynamodb.NewFromConfig(cfg)
}

// record is the DynamoDB item shape, one per registered ticket tag.
// TTL expires unclaimed entries so a ticket tag can't be squatted.
type record struct {
	Tag        string   `json:"ticket_tag" dynamodbav:"ticket_tag"`
	Candidates []string `json:"candidates" dynamodbav:"candidates"`
	ExpiresAt  int64    `json:"expires_at" dynamodbav:"expires_at"`
}

// ttl bounds how long an unclaimed registration lives; a ticket itself
// is single-use and meant to be redeemed within minutes of being shared.
const ttl = 10 * time.Minute

// Handler routes API Gateway HTTP API requests to the register/lookup
// handlers, the same dispatch shape as the teacher's registry.
func Handler(ctx context.Context, request events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	log.Printf("Processing request %s %s", request.RequestContext.HTTP.Method, request.RequestContext.HTTP.Path)

	switch request.RequestContext.HTTP.Method {
	case "POST":
		return handleRegister(ctx, request.Body)
	case "GET":
		tag := request.PathParameters["tag"]
		if tag == "" {
			return errorResponse(400, "Missing tag parameter"), nil
		}
		return handleLookup(ctx, tag)
	default:
		return errorResponse(405, "Method Not Allowed"), nil
	}
}

func handleRegister(ctx context.Context, body string) (events.APIGatewayV2HTTPResponse, error) {
	var rec record
	if err := json.Unmarshal([]byte(body), &rec); err != nil {
		return errorResponse(400, "Invalid JSON body"), nil
	}
	if rec.Tag == "" {
		return errorResponse(400, "ticket_tag is required"), nil
	}
	if len(rec.Candidates) == 0 {
		return errorResponse(400, "candidates must not be empty"), nil
	}

	rec.ExpiresAt = time.Now().Add(ttl).Unix()

	av, err := attributevalue.MarshalMap(rec)
	if err != nil {
		log.Printf("Failed to marshal record: %v", err)
		return errorResponse(500, "Internal Server Error"), nil
	}

	if _, err := svc.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(tableName),
		Item:      av,
	}); err != nil {
		log.Printf("Failed to put item into DynamoDB: %v", err)
		return errorResponse(500, "Failed to save record"), nil
	}

	return events.APIGatewayV2HTTPResponse{
		StatusCode: 200,
		Body:       `{"message": "registered"}`,
		Headers:    map[string]string{"Content-Type": "application/json"},
	}, nil
}

func handleLookup(ctx context.Context, tag string) (events.APIGatewayV2HTTPResponse, error) {
	out, err := svc.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(tableName),
		Key: map[string]types.AttributeValue{
			"ticket_tag": &types.AttributeValueMemberS{Value: tag},
		},
	})
	if err != nil {
		log.Printf("Failed to get item: %v", err)
		return errorResponse(500, "Failed to lookup tag"), nil
	}
	if out.Item == nil {
		return errorResponse(404, "tag not found"), nil
	}

	var rec record
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		log.Printf("Failed to unmarshal item: %v", err)
		return errorResponse(500, "Internal Server Error"), nil
	}

	responseBody, _ := json.Marshal(rec)
	return events.APIGatewayV2HTTPResponse{
		StatusCode: 200,
		Body:       string(responseBody),
		Headers:    map[string]string{"Content-Type": "application/json"},
	}, nil
}

func errorResponse(statusCode int, message string) events.APIGatewayV2HTTPResponse {
	return events.APIGatewayV2HTTPResponse{
		StatusCode: statusCode,
		Body:       fmt.Sprintf(`{"error": "%s"}`, message),
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

func main() {
	lambda.Start(Handler)
}
