// Package docs описание API для /swagger
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "paths": {
        "/api/v1/products": {
            "get": {"summary": "List products", "tags": ["products"], "parameters": [
                {"name": "page", "in": "query", "type": "integer"},
                {"name": "page_size", "in": "query", "type": "integer"}
            ], "responses": {"200": {"description": "OK"}}},
            "post": {"summary": "Create product", "tags": ["products"], "responses": {"201": {"description": "Created"}, "409": {"description": "Duplicate SKU"}}}
        },
        "/api/v1/products/groups": {
            "get": {"summary": "Group overview", "tags": ["products"], "responses": {"200": {"description": "OK"}}}
        },
        "/api/v1/products/groups/{groupId}/stock": {
            "post": {"summary": "Set stock for every group member", "tags": ["products"], "parameters": [
                {"name": "groupId", "in": "path", "required": true, "type": "string"}
            ], "responses": {"200": {"description": "OK"}, "400": {"description": "Invalid stock"}, "404": {"description": "Empty group"}}}
        },
        "/api/v1/products/import/{marketplace}": {
            "post": {"summary": "Import marketplace catalog", "tags": ["products"], "parameters": [
                {"name": "marketplace", "in": "path", "required": true, "type": "string", "enum": ["woocommerce", "mercadolibre", "amazon"]}
            ], "responses": {"200": {"description": "OK"}, "400": {"description": "Not connected"}}}
        },
        "/api/v1/products/{id}": {
            "get": {"summary": "Get product", "tags": ["products"], "responses": {"200": {"description": "OK"}, "404": {"description": "Not found"}}},
            "put": {"summary": "Update product and push changes", "tags": ["products"], "responses": {"200": {"description": "OK"}}},
            "delete": {"summary": "Delete product locally", "tags": ["products"], "responses": {"200": {"description": "OK"}}}
        },
        "/api/v1/products/{id}/sync/{marketplace}": {
            "post": {"summary": "Publish or update one product on a marketplace", "tags": ["products"], "responses": {"200": {"description": "OK"}, "502": {"description": "Marketplace error"}}}
        },
        "/api/v1/products/{id}/status": {
            "post": {"summary": "Pause or activate product", "tags": ["products"], "responses": {"200": {"description": "OK"}}}
        },
        "/api/v1/connections": {
            "get": {"summary": "List connections", "tags": ["connections"], "responses": {"200": {"description": "OK"}}}
        },
        "/api/v1/connections/{marketplace}": {
            "get": {"summary": "Get connection", "tags": ["connections"], "responses": {"200": {"description": "OK"}}},
            "put": {"summary": "Save and test credentials", "tags": ["connections"], "responses": {"200": {"description": "OK"}}},
            "delete": {"summary": "Remove connection", "tags": ["connections"], "responses": {"200": {"description": "OK"}}}
        },
        "/api/v1/connections/{marketplace}/test": {
            "post": {"summary": "Re-test connection", "tags": ["connections"], "responses": {"200": {"description": "OK"}}}
        },
        "/api/v1/sync/status": {"get": {"summary": "Scheduler status", "tags": ["sync"], "responses": {"200": {"description": "OK"}}}},
        "/api/v1/sync/history": {"get": {"summary": "Recent sync runs", "tags": ["sync"], "responses": {"200": {"description": "OK"}}}},
        "/api/v1/sync/run": {"post": {"summary": "Run full sync", "tags": ["sync"], "responses": {"200": {"description": "OK"}}}},
        "/api/v1/sync/run/{marketplace}": {"post": {"summary": "Sync one marketplace", "tags": ["sync"], "responses": {"200": {"description": "OK"}, "409": {"description": "Sync in progress"}}}},
        "/api/v1/sync/interval": {"put": {"summary": "Change poll interval", "tags": ["sync"], "responses": {"200": {"description": "OK"}, "400": {"description": "Interval below 1 minute"}}}},
        "/api/v1/tokens/{marketplace}": {"get": {"summary": "Token status", "tags": ["tokens"], "responses": {"200": {"description": "OK"}}}},
        "/api/v1/tokens/{marketplace}/refresh": {"post": {"summary": "Force token refresh", "tags": ["tokens"], "responses": {"200": {"description": "OK"}}}},
        "/webhooks/mercadolibre": {"post": {"summary": "MercadoLibre notification", "tags": ["webhooks"], "responses": {"200": {"description": "Queued"}, "503": {"description": "Queue unavailable"}}}},
        "/webhooks/woocommerce": {"post": {"summary": "WooCommerce notification", "tags": ["webhooks"], "responses": {"200": {"description": "Queued"}, "503": {"description": "Queue unavailable"}}}},
        "/webhooks/logs": {"get": {"summary": "Recent webhook processing log", "tags": ["webhooks"], "responses": {"200": {"description": "OK"}}}}
    }
}`

// SwaggerInfo метаданные документа
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Catalog Sync API",
	Description:      "Синхронизация каталога WooCommerce, MercadoLibre и Amazon",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
