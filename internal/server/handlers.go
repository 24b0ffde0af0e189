package server

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// handleWebSocket upgrades the request and hands the connection to the hub,
// which starts its pumps. The first text frame the client sends is its
// username.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Str("addr", r.RemoteAddr).Msg("WebSocket upgrade failed")
		return
	}

	client := NewClient(conn, s.hub, r.RemoteAddr, s.cfg, s.sendBuffer)
	if !s.hub.join(client) {
		client.closeConnection()
	}
}

// handleHealth responds with a plain text status line.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Relaychat server is running!")
}

// handleUsers lists the registered usernames.
func (s *Server) handleUsers(w http.ResponseWriter, _ *http.Request) {
	users := s.router.Registry().Usernames()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(usersResponse{Users: users, Count: len(users)}); err != nil {
		s.logger.Warn().Err(err).Msg("Error writing users response")
	}
}

// handleTestPage serves a browser page for trying the relay by hand.
func (s *Server) handleTestPage(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := fmt.Fprint(w, testPage); err != nil {
		s.logger.Warn().Err(err).Msg("Error writing HTML response")
	}
}

const testPage = `<!DOCTYPE html>
<html>
<head>
    <title>Relaychat WebSocket Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #messages { 
            border: 1px solid #ccc; 
            height: 300px; 
            padding: 10px; 
            overflow-y: scroll; 
            margin: 10px 0;
            background-color: #f9f9f9;
        }
        input[type="text"] { 
            width: 300px; 
            padding: 5px; 
            margin-right: 10px;
        }
        button { 
            padding: 5px 15px; 
            background-color: #007cba; 
            color: white; 
            border: none; 
            cursor: pointer;
        }
        button:hover { background-color: #005a87; }
        .status { 
            margin: 10px 0; 
            padding: 5px; 
            border-radius: 3px;
        }
        .connected { background-color: #d4edda; color: #155724; }
        .disconnected { background-color: #f8d7da; color: #721c24; }
    </style>
</head>
<body>
    <h1>Relaychat WebSocket Test</h1>
    
    <div id="status" class="status disconnected">Disconnected</div>
    
    <div>
        <input type="text" id="usernameInput" placeholder="Username...">
        <input type="text" id="messageInput" placeholder="Message, /msg user text, or @bot question" disabled>
        <button id="sendButton" onclick="sendMessage()" disabled>Send</button>
        <button id="connectButton" onclick="toggleConnection()">Connect</button>
    </div>
    
    <div id="messages"></div>

    <script>
        let ws = null;
        const messagesDiv = document.getElementById('messages');
        const usernameInput = document.getElementById('usernameInput');
        const messageInput = document.getElementById('messageInput');
        const sendButton = document.getElementById('sendButton');
        const connectButton = document.getElementById('connectButton');
        const statusDiv = document.getElementById('status');

        function addMessage(message, type = 'info') {
            const messageElement = document.createElement('div');
            messageElement.style.margin = '5px 0';
            messageElement.style.padding = '3px';
            
            if (type === 'received') {
                if (message.startsWith('(Private)')) {
                    messageElement.style.color = 'purple';
                } else if (message.includes('🤖 @bot:')) {
                    messageElement.style.color = 'green';
                } else if (message.startsWith('❌')) {
                    messageElement.style.color = 'red';
                } else {
                    messageElement.style.color = 'black';
                }
                messageElement.textContent = message;
            } else {
                messageElement.style.color = 'gray';
                messageElement.style.fontStyle = 'italic';
                messageElement.textContent = message;
            }
            
            messagesDiv.appendChild(messageElement);
            messagesDiv.scrollTop = messagesDiv.scrollHeight;
        }

        function updateStatus(connected) {
            if (connected) {
                statusDiv.textContent = 'Connected';
                statusDiv.className = 'status connected';
                messageInput.disabled = false;
                sendButton.disabled = false;
                connectButton.textContent = 'Disconnect';
            } else {
                statusDiv.textContent = 'Disconnected';
                statusDiv.className = 'status disconnected';
                messageInput.disabled = true;
                sendButton.disabled = true;
                connectButton.textContent = 'Connect';
            }
        }

        function connect() {
            const username = usernameInput.value.trim();
            if (!username) {
                addMessage('Enter a username first');
                return;
            }
            const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
            ws = new WebSocket(scheme + location.host + '/ws');
            
            ws.onopen = function(event) {
                ws.send(username);
                addMessage('Connected as ' + username);
                updateStatus(true);
            };
            
            ws.onmessage = function(event) {
                addMessage(event.data, 'received');
            };
            
            ws.onclose = function(event) {
                addMessage('Connection closed');
                updateStatus(false);
                ws = null;
            };
            
            ws.onerror = function(error) {
                addMessage('Connection error: ' + error);
                updateStatus(false);
            };
        }

        function disconnect() {
            if (ws) {
                ws.close();
            }
        }

        function toggleConnection() {
            if (ws && ws.readyState === WebSocket.OPEN) {
                disconnect();
            } else {
                connect();
            }
        }

        function sendMessage() {
            const message = messageInput.value.trim();
            if (message && ws && ws.readyState === WebSocket.OPEN) {
                ws.send(message);
                messageInput.value = '';
            }
        }

        messageInput.addEventListener('keypress', function(e) {
            if (e.key === 'Enter') {
                sendMessage();
            }
        });
    </script>
</body>
</html>`
