// Package swagger holds the OpenAPI document served at /swagger. It follows
// the layout swag emits but is maintained by hand; keep it in step with the
// @Router annotations in internal/provision/handler.go.
package swagger

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
    "paths": {
        "/images": {
            "get": {
                "security": [{"BearerAuth": []}],
                "description": "Lists the public URLs of client images below a folder such as \"123/scooter rental\".",
                "produces": ["application/json"],
                "tags": ["images"],
                "summary": "List client images",
                "parameters": [
                    {"type": "string", "description": "Relative folder path", "name": "folder", "in": "query", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"allOf": [{"$ref": "#/definitions/response.Envelope"}, {"type": "object", "properties": {"data": {"$ref": "#/definitions/provision.imagesData"}}}]}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/response.Envelope"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/response.Envelope"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/response.Envelope"}}
                }
            },
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Stores up to 10 uploaded images in the client tier under the owner and keyword folder.",
                "consumes": ["multipart/form-data"],
                "produces": ["application/json"],
                "tags": ["images"],
                "summary": "Save client images",
                "parameters": [
                    {"type": "string", "description": "Owner (company) id", "name": "ownerId", "in": "formData", "required": true},
                    {"type": "string", "description": "Topic keyword", "name": "keyword", "in": "formData", "required": true},
                    {"type": "boolean", "description": "Store the images already marked as used", "name": "markAsUsed", "in": "formData"},
                    {"type": "file", "description": "Image files", "name": "images", "in": "formData", "required": true}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"allOf": [{"$ref": "#/definitions/response.Envelope"}, {"type": "object", "properties": {"data": {"$ref": "#/definitions/provision.urlsData"}}}]}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/response.Envelope"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/response.Envelope"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/response.Envelope"}}
                }
            },
            "delete": {
                "security": [{"BearerAuth": []}],
                "description": "Deletes one image given by the path query parameter, or every image listed in the body. Bulk deletion is best effort and reports what was removed.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["images"],
                "summary": "Delete images",
                "parameters": [
                    {"type": "string", "description": "Public URL or bucket key of a single image", "name": "path", "in": "query"},
                    {"description": "Images to delete", "name": "request", "in": "body", "schema": {"$ref": "#/definitions/provision.deleteImagesRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"allOf": [{"$ref": "#/definitions/response.Envelope"}, {"type": "object", "properties": {"data": {"$ref": "#/definitions/provision.deletedData"}}}]}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/response.Envelope"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/response.Envelope"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/response.Envelope"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/response.Envelope"}}
                }
            }
        },
        "/owners/{ownerID}/claims": {
            "get": {
                "security": [{"BearerAuth": []}],
                "description": "Returns the most recent images handed out for an owner, newest first.",
                "produces": ["application/json"],
                "tags": ["images"],
                "summary": "List provisioned images",
                "parameters": [
                    {"type": "string", "description": "Owner id", "name": "ownerID", "in": "path", "required": true},
                    {"type": "integer", "description": "Maximum entries (default 50)", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"allOf": [{"$ref": "#/definitions/response.Envelope"}, {"type": "object", "properties": {"data": {"type": "array", "items": {"$ref": "#/definitions/ledger.Entry"}}}}]}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/response.Envelope"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/response.Envelope"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/response.Envelope"}}
                }
            }
        },
        "/provision": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Returns an unused stored image for the owner and topic, preferring client uploads over earlier AI output. When none is left a new image is generated, stored and returned.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["images"],
                "summary": "Provision an image",
                "parameters": [
                    {"description": "Owner, topic and prompt fields", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/provision.Request"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"allOf": [{"$ref": "#/definitions/response.Envelope"}, {"type": "object", "properties": {"data": {"$ref": "#/definitions/provision.Result"}}}]}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/response.Envelope"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/response.Envelope"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/response.Envelope"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/response.Envelope"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/response.Envelope"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/response.Envelope"}}
                }
            }
        }
    },
    "definitions": {
        "ledger.Entry": {
            "type": "object",
            "properties": {
                "createdAt": {"type": "string"},
                "id": {"type": "integer"},
                "objectKey": {"type": "string"},
                "ownerId": {"type": "string"},
                "prompt": {"type": "string"},
                "source": {"type": "string"},
                "tier": {"type": "string"},
                "topicKey": {"type": "string"},
                "url": {"type": "string"}
            }
        },
        "provision.Request": {
            "type": "object",
            "properties": {
                "additionalContext": {"type": "string"},
                "colorPalette": {"type": "string"},
                "companyName": {"type": "string", "example": "Tech Solutions Inc."},
                "count": {"type": "integer", "example": 1},
                "country": {"type": "string", "example": "USA"},
                "keyElements": {"type": "string"},
                "lighting": {"type": "string"},
                "mood": {"type": "string", "example": "Trustworthy, Reliable, Competent"},
                "ownerId": {"type": "string", "example": "12121151872725055808"},
                "perspective": {"type": "string"},
                "size": {"type": "string", "example": "1024x1024"},
                "style": {"type": "string", "example": "Technical and Professional"},
                "texture": {"type": "string"},
                "topic": {"type": "string", "example": "Coffee Shop"}
            }
        },
        "provision.Result": {
            "type": "object",
            "properties": {
                "captionPrompt": {"type": "string"},
                "key": {"type": "string"},
                "revisedPrompt": {"type": "string"},
                "source": {"type": "string", "example": "generated"},
                "url": {"type": "string"}
            }
        },
        "provision.deleteImagesRequest": {
            "type": "object",
            "properties": {
                "paths": {"type": "array", "items": {"type": "string"}, "example": ["CLIENT_IMAGES/123/coffee_shop_/img1.jpg"]}
            }
        },
        "provision.deletedData": {
            "type": "object",
            "properties": {"deleted": {"type": "array", "items": {"type": "string"}}}
        },
        "provision.imagesData": {
            "type": "object",
            "properties": {"images": {"type": "array", "items": {"type": "string"}}}
        },
        "provision.urlsData": {
            "type": "object",
            "properties": {"urls": {"type": "array", "items": {"type": "string"}}}
        },
        "response.Envelope": {
            "type": "object",
            "properties": {
                "data": {},
                "error": {"type": "string"},
                "success": {"type": "boolean"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "description": "JWT Bearer token. Format: **Bearer {token}**",
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "GBP AI Image API",
	Description:      "Provisions marketing images for business profiles: reuses unused client and AI images, generating new ones when none are left.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
